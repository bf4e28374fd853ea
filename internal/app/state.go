package app

// ViewState represents the phases of the progress view.
type ViewState int

const (
	Running ViewState = iota
	Cancelling
	Finished
)
