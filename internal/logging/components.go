package logging

// Component constants for structured logging
const (
	ComponentStartup  = "startup"
	ComponentAPI      = "api"
	ComponentPipeline = "pipeline"
	ComponentOffload  = "offload"
	ComponentSessions = "sessions"
	ComponentEvents   = "events"
	ComponentPollers  = "pollers"
	ComponentDatabase = "database"
	ComponentStore    = "store"
	ComponentFeed     = "feed"
	ComponentCLI      = "cli"
)
