// Package topic holds the built-in debate topic catalog.
package topic

import "github.com/alienxp03/toron/internal/core"

// Stance is one side of a topic.
type Stance struct {
	Label string `json:"label"`
	Emoji string `json:"emoji"`
}

// Topic is a ready-made debate with two stances and a moderator briefing.
type Topic struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SideA       Stance `json:"sideA"`
	SideB       Stance `json:"sideB"`
	Briefing    string `json:"briefing,omitempty"`
}

// Metadata turns the topic into the metadata of a new conversation.
// In user-vs-ai mode the user takes sideA and the agent sideB.
func (t Topic) Metadata(mode core.DebateMode, maxTurns int) core.DebateMetadata {
	return core.DebateMetadata{
		Topic:      t.Title,
		UserSide:   t.SideA.Label,
		AgentSide:  t.SideB.Label,
		DebateMode: string(mode),
		MaxTurns:   maxTurns,
	}
}

var catalog = []Topic{
	{
		ID:          "normalization",
		Title:       "Normalization vs Denormalization",
		Description: "The eternal schema argument. Guard integrity with normal forms, or trade it for read performance?",
		SideA:       Stance{Label: "For normalization", Emoji: "\U0001F3DB️"},
		SideB:       Stance{Label: "For denormalization", Emoji: "⚡"},
		Briefing: "A fundamental dilemma of database design. Normalization, proposed by E.F. Codd in 1970, " +
			"protects data integrity, yet JOIN costs become the bottleneck under today's huge read workloads. " +
			"Instagram denormalizes to serve tens of thousands of queries per second while banks defend 3NF " +
			"like a fortress. Is there a right answer?",
	},
	{
		ID:          "monolith-micro",
		Title:       "Monolith vs Microservices",
		Description: "Build one great castle, or split it into many small forts?",
		SideA:       Stance{Label: "For the monolith", Emoji: "\U0001F3F0"},
		SideB:       Stance{Label: "For microservices", Emoji: "\U0001F9E9"},
		Briefing: "Microservices became the industry trend after Netflix moved to them in the 2010s, but " +
			"Amazon Prime Video recently went back to a monolith and cut costs by 90%. Shopify handles Black " +
			"Friday on a monolith while Uber runs thousands of services. Scale against complexity: which " +
			"side is right?",
	},
	{
		ID:          "rest-graphql",
		Title:       "REST vs GraphQL",
		Description: "The proven simplicity of REST, or the flexible data fetching of GraphQL?",
		SideA:       Stance{Label: "For REST", Emoji: "\U0001F4E1"},
		SideB:       Stance{Label: "For GraphQL", Emoji: "\U0001F52E"},
		Briefing: "REST, defined by Roy Fielding in 2000, became the backbone of the web, and GraphQL, " +
			"open-sourced by Facebook in 2015, promised a revolution in frontend development. GitHub moved " +
			"from REST v3 to GraphQL v4, but Google and AWS remain REST-first. Caching, type safety, " +
			"developer experience... who wins?",
	},
	{
		ID:          "sql-nosql",
		Title:       "SQL vs NoSQL",
		Description: "The robustness of relational databases, or the scalability of NoSQL?",
		SideA:       Stance{Label: "For SQL", Emoji: "\U0001F4CA"},
		SideB:       Stance{Label: "For NoSQL", Emoji: "\U0001F30A"},
		Briefing: "After forty years of RDBMS dominance since 1970, MongoDB, Cassandra and DynamoDB threw " +
			"down the gauntlet. Discord moved from Cassandra to ScyllaDB, Uber from PostgreSQL to MySQL, and " +
			"NewSQL (CockroachDB, TiDB) now tries to combine the best of both. ACID or BASE: which " +
			"guarantee matters more?",
	},
	{
		ID:          "bumuk-jjikmuk",
		Title:       "Pour vs Dip",
		Description: "What is the one true way to eat sweet-and-sour pork? Let's analyze it technically!",
		SideA:       Stance{Label: "Pour the sauce", Emoji: "\U0001FAD7"},
		SideB:       Stance{Label: "Dip in the sauce", Emoji: "\U0001F962"},
		Briefing: "The true holy war of the Korean IT industry. Pouring unifies the whole dish like an " +
			"integration test, while dipping keeps each piece independent like a unit test. An internal " +
			"survey at a delivery app found 62% dip against 38% pour, but the pour camp argues the sauce " +
			"soaking in over time is an optimization. Can technology settle this?",
	},
}

// List returns the catalog in display order.
func List() []Topic {
	out := make([]Topic, len(catalog))
	copy(out, catalog)
	return out
}

// Get returns a topic by ID, or nil.
func Get(id string) *Topic {
	for _, t := range catalog {
		if t.ID == id {
			t := t
			return &t
		}
	}
	return nil
}
