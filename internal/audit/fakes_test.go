package audit

import (
	"context"
	"errors"
)

// fakeEngine returns a canned response and records the last prompt.
type fakeEngine struct {
	response   string
	err        error
	lastPrompt string
}

func (f *fakeEngine) Generate(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// fakeRelational serves rows keyed by statement text; unknown statements
// fail.
type fakeRelational struct {
	rows    map[string][]Row
	failAll bool
}

func (f *fakeRelational) Query(_ context.Context, stmt string) ([]Row, error) {
	if f.failAll {
		return nil, errors.New("connection refused")
	}
	rows, ok := f.rows[stmt]
	if !ok {
		return nil, errors.New("relation does not exist")
	}
	return rows, nil
}

type fakeGraph struct {
	rows    map[string][]Row
	failAll bool
}

func (f *fakeGraph) ReadQuery(_ context.Context, stmt string) ([]Row, error) {
	if f.failAll {
		return nil, errors.New("connection refused")
	}
	rows, ok := f.rows[stmt]
	if !ok {
		return nil, errors.New("unknown query")
	}
	return rows, nil
}
