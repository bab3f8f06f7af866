package models

// PolicyFile is the serialized form of the workflow and permission tables.
// It is what an operator edits to change the workflow; the runtime never
// hardcodes statuses outside of it.
type PolicyFile struct {
	Version      string            `yaml:"version" json:"version"`
	Transitions  []TransitionRule  `yaml:"transitions" json:"transitions"`
	Permissions  map[string][]Role `yaml:"permissions" json:"permissions"`
	Capabilities map[string]int    `yaml:"capabilities" json:"capabilities"`
	LevelTitles  map[int]string    `yaml:"level_titles,omitempty" json:"level_titles,omitempty"`
}

// TransitionRule is one edge of the status graph with the roles allowed to
// execute it. Capability optionally names a level-model capability that
// levelled actors must also hold.
type TransitionRule struct {
	From       TaskStatus `yaml:"from" json:"from"`
	To         TaskStatus `yaml:"to" json:"to"`
	Roles      []Role     `yaml:"roles" json:"roles"`
	Capability string     `yaml:"capability,omitempty" json:"capability,omitempty"`
}
