package provision

import (
	"fmt"
)

// Stage is one step in the provisioning sequence. Stages run in the order
// of their values.
type Stage int

const (
	StageStartNetwork Stage = iota
	StageEnableDHCP
	StageCreateInstances
	StageBindInstanceSwitches
	StageWaitForAddresses
	StageEnableRouting
	StageCreateGateway
	StageAttachInterfaces
	StageBindGatewaySwitches

	stageCount
)

var stageNames = [...]string{
	StageStartNetwork:         "start-network",
	StageEnableDHCP:           "enable-dhcp",
	StageCreateInstances:      "create-dhcp-instances",
	StageBindInstanceSwitches: "bind-dhcp-switches",
	StageWaitForAddresses:     "wait-for-addresses",
	StageEnableRouting:        "enable-routing",
	StageCreateGateway:        "create-gateway",
	StageAttachInterfaces:     "attach-gateway-interfaces",
	StageBindGatewaySwitches:  "bind-gateway-switches",
}

func (s Stage) String() string {
	if s < 0 || s >= stageCount {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Stages returns every stage in execution order.
func Stages() []Stage {
	stages := make([]Stage, 0, stageCount)
	for s := StageStartNetwork; s < stageCount; s++ {
		stages = append(stages, s)
	}
	return stages
}

// State is the provisioning cursor. It only moves forward.
type State struct {
	next Stage
}

// Complete marks s as done. Stages must be completed in order.
func (st *State) Complete(s Stage) error {
	if s != st.next {
		return fmt.Errorf("complete %s: next stage is %s", s, st.next)
	}
	st.next++
	return nil
}

// Completed reports whether s has been completed.
func (st *State) Completed(s Stage) bool {
	return s < st.next
}

// Next returns the first stage that has not completed.
func (st *State) Next() Stage {
	return st.next
}

// Done reports whether every stage has completed.
func (st *State) Done() bool {
	return st.next == stageCount
}
