package model

// Decision is the parsed result of a backend query. Answered is the
// confidence gate: a false value means the backend did not commit to
// an answer and the relay stays silent.
type Decision struct {
	Answer   string `json:"answer"`
	Answered bool   `json:"answered"`
}
