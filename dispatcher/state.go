package dispatcher

// RobotState is the canonical snapshot broadcast after every accepted
// non-calibration action (calibration actions broadcast a calibration
// snapshot instead), per spec §3/§6.
type RobotState struct {
	Speed       float64 `json:"speed"`
	Direction   int     `json:"direction"`
	ServoAngle  float64 `json:"servoAngle"`
	CamPan      float64 `json:"camPan"`
	CamTilt     float64 `json:"camTilt"`
	MaxSpeed    float64 `json:"maxSpeed"`

	AvoidObstacles          bool     `json:"avoidObstacles"`
	AutoMeasureDistanceMode bool     `json:"autoMeasureDistanceMode"`
	Distance                *float64 `json:"distance"`
}

// Event is an outbound broadcaster frame: either {type, payload} or
// {type, error}.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Command is an inbound {action, payload} message.
type Command struct {
	Action  string
	Payload map[string]interface{}
	// ReplyTo, if non-nil, receives the originator-only rejection event
	// for this command (spec §4.8's "to the originator only").
	ReplyTo chan<- Event
}
