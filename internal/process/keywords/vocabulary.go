package keywords

// Topic buckets form a closed vocabulary. An article belongs to every bucket
// whose keyword list intersects its text.
var topicVocabulary = map[string][]string{
	"politics": {
		"president", "congress", "senate", "house", "election", "vote", "voter",
		"campaign", "democrat", "republican", "governor", "legislation", "bill",
		"policy", "white house", "supreme court", "impeachment", "administration",
		"lawmaker", "parliament", "minister", "candidate", "primary", "ballot",
	},
	"economy": {
		"economy", "inflation", "recession", "unemployment", "jobs", "market",
		"stocks", "trade", "tariff", "interest rate", "federal reserve", "gdp",
		"wages", "tax", "budget", "deficit", "debt", "banking", "investment",
		"earnings", "consumer", "prices",
	},
	"technology": {
		"technology", "tech", "software", "artificial intelligence", "ai",
		"startup", "cyber", "hack", "data breach", "privacy", "social media",
		"smartphone", "chip", "semiconductor", "robot", "algorithm", "internet",
		"app", "cloud", "crypto", "bitcoin",
	},
	"health": {
		"health", "hospital", "doctor", "vaccine", "virus", "pandemic",
		"disease", "outbreak", "medicine", "drug", "fda", "cancer",
		"mental health", "medicaid", "medicare", "insurance", "patient", "treatment",
		"surgery", "obesity",
	},
	"international": {
		"united nations", "nato", "war", "ceasefire", "treaty", "sanctions",
		"diplomat", "embassy", "border", "refugee", "invasion", "military",
		"missile", "nuclear", "foreign", "summit", "ally", "conflict",
		"peacekeeping", "troops",
	},
	"climate": {
		"climate", "climate change", "global warming", "emissions", "carbon",
		"renewable", "solar", "wind power", "fossil fuel", "drought", "wildfire",
		"hurricane", "flood", "heatwave", "epa", "pollution", "sustainability",
		"greenhouse", "sea level",
	},
	"crime": {
		"crime", "police", "arrest", "shooting", "murder", "homicide", "theft",
		"fraud", "trial", "verdict", "sentence", "prison", "investigation",
		"suspect", "charges", "indictment", "lawsuit", "court", "jury",
		"prosecutor",
	},
	"sports": {
		"game", "season", "championship", "playoffs", "coach", "team", "league",
		"nfl", "nba", "mlb", "nhl", "olympics", "world cup", "tournament",
		"athlete", "score", "touchdown", "goal", "win streak", "stadium",
	},
}

// Event keywords signal that two articles describe the same occurrence
// rather than the same standing topic.
var eventKeywords = []string{
	"breaking", "announces", "announced", "launches", "launched", "signs",
	"signed", "passes", "passed", "approves", "approved", "rejects", "rejected",
	"resigns", "resigned", "dies", "died", "killed", "wins", "won", "loses",
	"lost", "shooting", "explosion", "crash", "strike", "protest", "verdict",
	"ruling", "indicted", "arrested", "elected", "vetoes", "unveils",
}

// Known organisations matched as entities regardless of casing.
var knownOrganizations = []string{
	"white house", "congress", "senate", "supreme court", "pentagon", "fbi",
	"cia", "nasa", "united nations", "nato", "european union",
	"world health organization", "federal reserve", "epa", "fda", "cdc", "google", "apple",
	"microsoft", "amazon", "meta", "tesla", "openai", "boeing", "exxon",
	"goldman sachs", "jpmorgan", "walmart",
}

// Major places matched as entities.
var knownPlaces = []string{
	"washington", "new york", "california", "texas", "florida", "chicago",
	"los angeles", "london", "paris", "berlin", "moscow", "beijing", "kyiv",
	"jerusalem", "gaza", "tehran", "taiwan", "ukraine", "russia", "china",
	"israel", "iran", "mexico", "canada", "europe", "africa",
}

// Titles preceding a capitalised name mark a person entity.
var personTitles = []string{
	"president", "senator", "rep.", "representative", "gov.", "governor",
	"secretary", "justice", "judge", "mayor", "dr.", "prof.", "prime minister",
	"chancellor", "king", "queen", "pope", "gen.", "general", "ceo",
}
