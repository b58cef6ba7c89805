package backend

// DroneStatus is the fleet API's view of one drone. Unknown fields are
// dropped on decode; the gateway only acts on the connectivity and flight
// flags.
type DroneStatus struct {
	DroneID        string `json:"drone_id"`
	Connected      bool   `json:"connected"`
	Flying         bool   `json:"flying"`
	BatteryPercent int    `json:"battery_percent"`
	HeightCm       int    `json:"height_cm"`
	Model          string `json:"model,omitempty"`
	FirmwareVer    string `json:"firmware_version,omitempty"`
}
