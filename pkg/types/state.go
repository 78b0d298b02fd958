package types

import (
	"fmt"
	"time"
)

// DeploymentState is the lifecycle position of one service deployment.
type DeploymentState string

const (
	StateUnprovisioned    DeploymentState = "UNPROVISIONED"
	StateCredentialsReady DeploymentState = "CREDENTIALS_READY"
	StateServiceStarting  DeploymentState = "SERVICE_STARTING"
	StateServiceRunning   DeploymentState = "SERVICE_RUNNING"
	StateServiceFailed    DeploymentState = "SERVICE_FAILED"
)

var transitions = map[DeploymentState][]DeploymentState{
	StateUnprovisioned:    {StateCredentialsReady},
	StateCredentialsReady: {StateCredentialsReady, StateServiceStarting},
	StateServiceStarting:  {StateServiceRunning, StateServiceFailed},
	// Restart and re-runs re-enter SERVICE_STARTING, and rotation goes back
	// through CREDENTIALS_READY.
	StateServiceRunning: {StateServiceStarting, StateCredentialsReady},
	StateServiceFailed:  {StateServiceStarting, StateCredentialsReady},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to DeploymentState) bool {
	if from == "" {
		from = StateUnprovisioned
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Deployment is the journaled record of one service in one environment.
type Deployment struct {
	RunID       string          `json:"runId"`
	Environment string          `json:"environment"`
	Service     string          `json:"service"`
	State       DeploymentState `json:"state"`

	// ContainerID is the exact identity of the launched container.
	ContainerID string `json:"containerId,omitempty"`

	// Mechanism records compose or direct.
	Mechanism string `json:"mechanism,omitempty"`

	// HashMethod records which hasher produced the credential hash.
	HashMethod string `json:"hashMethod,omitempty"`
	Degraded   bool   `json:"degraded,omitempty"`

	// CompletedSteps lists step names finished in RunID, for --continue.
	CompletedSteps []string `json:"completedSteps,omitempty"`

	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transition moves d to the next state, rejecting disallowed moves.
func (d *Deployment) Transition(to DeploymentState, message string) error {
	if !CanTransition(d.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.State, to)
	}
	d.State = to
	d.Message = message
	d.UpdatedAt = time.Now()
	return nil
}

// StepDone reports whether step is recorded as completed.
func (d *Deployment) StepDone(step string) bool {
	for _, s := range d.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// MarkStep records step as completed once.
func (d *Deployment) MarkStep(step string) {
	if !d.StepDone(step) {
		d.CompletedSteps = append(d.CompletedSteps, step)
	}
}
