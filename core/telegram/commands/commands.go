// Package commands describes slash commands for the platform menu and the admin listing.
package commands

// Command is the metadata of one slash command. Routing lives in the router.
type Command struct {
	Description string
	// AdminOnly commands are reachable by operators only and never published in the menu.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Entry pairs a command name with its metadata.
type Entry struct {
	Name string
	Command
}
