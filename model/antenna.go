package model

// ECEF is an Earth-centred, Earth-fixed position in metres.
type ECEF struct {
	X float64
	Y float64
	Z float64
}

// Sub returns p - other.
func (p ECEF) Sub(other ECEF) ECEF {
	return ECEF{X: p.X - other.X, Y: p.Y - other.Y, Z: p.Z - other.Z}
}

// Antenna is a physical array element. Positions are ECEF metres, the
// same frame the UVW synthesis works in.
type Antenna struct {
	ID       string `json:"ID"`
	Name     string `json:"Name"`
	Position ECEF   `json:"Position"`
}
