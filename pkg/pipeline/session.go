package pipeline

import (
	"github.com/perbu/labrag/pkg/index"
)

// State of the correction loop
type State string

const (
	StateGenerate  State = "GENERATE"
	StateValidate  State = "VALIDATE"
	StateRetry     State = "RETRY"
	StateSuccess   State = "SUCCESS"
	StateExhausted State = "EXHAUSTED"
)

// Terminal reports whether no further transition can happen from s
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateExhausted
}

// Attempt is one validated candidate. It is never changed after the loop
// records it; the next attempt supersedes it.
type Attempt struct {
	Number int
	Code   string
	Stdout string
	Stderr string
	Passed bool
}

// Session is the lifecycle of one query through the pipeline
type Session struct {
	ID             string
	Query          string
	QueryEmbedding []float32
	Retrieval      []index.Result

	// Attempts holds every candidate that reached the validator, in order
	Attempts []Attempt

	// AttemptCount counts generation attempts, including one that produced
	// no text and therefore never reached the validator
	AttemptCount int

	State     State
	Code      string // final script, set only on SUCCESS
	LastError string // stderr of the last failed attempt
	Verdict   *Verdict
}

// Succeeded reports whether the session ended with a usable script
func (s *Session) Succeeded() bool {
	return s.State == StateSuccess
}

// Chunks returns the retrieved chunk texts in rank order
func (s *Session) Chunks() []string {
	out := make([]string, len(s.Retrieval))
	for i, r := range s.Retrieval {
		out[i] = r.Chunk.Content
	}
	return out
}

// Sources returns the source labels of the retrieved chunks in rank order
func (s *Session) Sources() []string {
	out := make([]string, len(s.Retrieval))
	for i, r := range s.Retrieval {
		out[i] = r.Chunk.Label()
	}
	return out
}
