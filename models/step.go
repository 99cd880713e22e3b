package models

import (
	"database/sql/driver"
	"fmt"
)

// Step is a stage of the program approval workflow. StepCAO is terminal.
type Step uint8

const (
	StepWardSecretary Step = iota
	StepPlanningOfficer
	StepCAO
	StepTechnicalHead

	stepCount
)

type stepPolicy struct {
	code         string
	submittedBy  string
	documentType string
	priority     Priority
}

// Every Step must have a row here; the assertion below fails the build otherwise.
var stepPolicies = [...]stepPolicy{
	StepWardSecretary: {
		code:         "ward_secretary",
		submittedBy:  "Ward Committee",
		documentType: "Program Proposal",
		priority:     PriorityLow,
	},
	StepPlanningOfficer: {
		code:         "planning_officer",
		submittedBy:  "Ward Secretary",
		documentType: "Cost Estimate",
		priority:     PriorityMedium,
	},
	StepCAO: {
		code:         "cao",
		submittedBy:  "Planning Officer",
		documentType: "Final Approval Request",
		priority:     PriorityHigh,
	},
	StepTechnicalHead: {
		code:         "technical_head",
		submittedBy:  "Technical Staff",
		documentType: "Technical Evaluation",
		priority:     PriorityLow,
	},
}

var _ = [1]struct{}{}[len(stepPolicies)-int(stepCount)]

// Steps lists every workflow step in declaration order.
func Steps() []Step {
	out := make([]Step, 0, stepCount)
	for s := Step(0); s < stepCount; s++ {
		out = append(out, s)
	}
	return out
}

// ParseStep maps the wire code to a Step.
func ParseStep(code string) (Step, error) {
	for s := Step(0); s < stepCount; s++ {
		if stepPolicies[s].code == code {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStep, code)
}

func (s Step) Valid() bool {
	return s < stepCount
}

func (s Step) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Step(%d)", uint8(s))
	}
	return stepPolicies[s].code
}

// Terminal reports whether resolving this step decides the program status.
func (s Step) Terminal() bool {
	return s == StepCAO
}

func (s Step) SubmittedBy() string {
	if !s.Valid() {
		return ""
	}
	return stepPolicies[s].submittedBy
}

func (s Step) DocumentType() string {
	if !s.Valid() {
		return ""
	}
	return stepPolicies[s].documentType
}

func (s Step) Priority() Priority {
	if !s.Valid() {
		return PriorityLow
	}
	return stepPolicies[s].priority
}

func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStep, uint8(s))
	}
	return []byte(stepPolicies[s].code), nil
}

func (s *Step) UnmarshalText(text []byte) error {
	parsed, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Step) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStep, uint8(s))
	}
	return stepPolicies[s].code, nil
}

func (s *Step) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return s.UnmarshalText(v)
	case string:
		return s.UnmarshalText([]byte(v))
	}
	return fmt.Errorf("step: unsupported source type %T", src)
}
