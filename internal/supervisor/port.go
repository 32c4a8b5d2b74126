package supervisor

// PortSource records how a port value was learned. The stdout announcement is
// a best-effort early hint; the sidecar file is authoritative among
// discovery sources; a successful connection confirms the value for the
// remainder of the session.
type PortSource int

const (
	PortSourceNone PortSource = iota
	PortSourceStdout
	PortSourceFile
	PortSourceConfirmed
)

func (s PortSource) String() string {
	switch s {
	case PortSourceStdout:
		return "stdout"
	case PortSourceFile:
		return "file"
	case PortSourceConfirmed:
		return "confirmed"
	default:
		return "none"
	}
}

// Port is a discovered backend port together with its provenance.
type Port struct {
	Value  int
	Source PortSource
}

// Known reports whether any port value has been discovered.
func (p Port) Known() bool { return p.Value > 0 }

// Confirmed reports whether the value was validated by a live connection.
func (p Port) Confirmed() bool { return p.Source == PortSourceConfirmed }
