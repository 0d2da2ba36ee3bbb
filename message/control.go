package message

// NewControl builds a TypeControl message with the given control type and
// status, per original_source's control.c (flux_control_encode). A
// KEEPALIVE is a Control message with ControlKeepalive and status 0
// (SPEC_FULL.md §11, open question #1).
func NewControl(ctype ControlType, status int32) (*Message, error) {
	m, err := New(TypeControl)
	if err != nil {
		return nil, err
	}
	if err := m.SetControl(ctype, status); err != nil {
		return nil, err
	}
	return m, nil
}

// NewCancel builds a CONTROL/cancel message targeting the given
// matchtag, used by a streaming future to cancel an outstanding
// streaming RPC (spec §4.5).
func NewCancel(matchtag uint32) (*Message, error) {
	m, err := NewControl(ControlCancel, 0)
	if err != nil {
		return nil, err
	}
	// Control messages reuse the response aux1/aux2 slots positionally;
	// matchtag travels in aux2 as on a response. IsCancel reads it back;
	// Matchtag() does not accept control messages.
	m.aux2 = matchtag
	return m, nil
}

// IsCancel reports whether m is a control/cancel message and returns the
// matchtag it targets.
func (m *Message) IsCancel() (uint32, bool) {
	if m.mtype != TypeControl {
		return 0, false
	}
	if ControlType(m.aux1) != ControlCancel {
		return 0, false
	}
	return m.aux2, true
}

// IsKeepalive reports whether m is a control/keepalive message.
func (m *Message) IsKeepalive() bool {
	return m.mtype == TypeControl && ControlType(m.aux1) == ControlKeepalive
}
