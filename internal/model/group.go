package model

// Group is a Clash proxy group as written into proxy-groups.
type Group struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // "select"

	Members []string `yaml:"proxies"` // proxy names, duplicates allowed
}
