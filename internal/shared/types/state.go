package types

// State labels mirrored to the tablet whenever the session changes
const (
	StateBase           = "Base"
	StateInitialising   = "Initialising"
	StateStartProcess   = "StartProcess"
	StateExperiences    = "Experiences"
	StateAwaiting       = "Awaiting"
	StateReady          = "Ready"
	StateLost           = "Lost"
	StateStopVrProcess  = "StopVrProcess"
	StateRestartProcess = "RestartProcess"
	StateIdle           = "Idle"
	StateExitIdle       = "ExitIdle"
	StateErrorSteamVr   = "ErrorSteamVr"
	StateErrorSteam     = "ErrorSteam"
	StateErrorVive      = "ErrorVive"
)

// Reporter is the outward message funnel. Implementations must not block.
type Reporter interface {
	PassMessage(msg Message)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(msg Message)

// PassMessage calls f(msg)
func (f ReporterFunc) PassMessage(msg Message) { f(msg) }
