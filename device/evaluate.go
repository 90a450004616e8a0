package device

import (
	"strings"

	"github.com/arloliu/go-converse/register"
)

const stateFlags = register.AlarmFlag | register.ErrorFlag | register.StatusFlag

// Finding is the decoded state of one flagged register.
type Finding struct {
	Register string
	Flags    register.Flags
	Value    register.Value
	// Name and Tag come from the register's value list; Known is false when
	// the value is not listed.
	Name  string
	Tag   string
	Known bool
}

// OK reports whether the value is listed with the tag "OK".
func (f Finding) OK() bool {
	return f.Known && strings.EqualFold(f.Tag, "OK")
}

// Evaluate decodes the alarm, error and status registers of the snapshot's
// block through their value lists, in register order.
func (a *Algorithm) Evaluate(s *Snapshot) []Finding {
	if s == nil {
		return nil
	}
	b, err := a.Block(s.Block)
	if err != nil {
		return nil
	}

	var findings []Finding
	for _, reg := range b.Registers {
		if reg.Flags()&stateFlags == 0 {
			continue
		}
		v, ok := s.Values[reg.Name()]
		if !ok {
			continue
		}

		f := Finding{Register: reg.Name(), Flags: reg.Flags(), Value: v}
		if nv, ok := reg.Values().Locate(v); ok {
			f.Name, f.Tag, f.Known = nv.Name, nv.Tag, true
		}
		if !f.OK() && reg.Flags()&(register.AlarmFlag|register.ErrorFlag) != 0 {
			a.logger.Info("device reports a problem",
				"block", b.Name, "register", reg.Name(), "value", v.String(), "name", f.Name, "tag", f.Tag)
		}
		findings = append(findings, f)
	}

	return findings
}
