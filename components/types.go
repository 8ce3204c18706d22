package components

type PanicHandlerFunc func()

type Action uint32

const (
	Shutdown Action = iota + 1
	Pause
	Resume
)

// ControlAction is used to communicate with running components.
type ControlAction struct {
	Action       Action
	ResponseChan chan error // the component confirms the action by sending an error (or nil) here.
}

// ComponentStep is a generic holder for one declarative transform action.
type ComponentStep struct {
	Type string            `json:"type" errorTxt:"step type" mandatory:"yes"`
	Data map[string]string `json:"data" errorTxt:"step data" mandatory:"yes"`
}
