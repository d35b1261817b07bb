package bus

// Topics used between the services of this firmware.

// Configuration, retained by the config service.
func TopicConfig() Topic { return T("config", "cec") }

// Indicator state transitions: payload is an indicator.State string.
func TopicIndicator() Topic { return T("indicator", "state") }

// Frame trace: payload is a cec.Frame for each frame sent or received.
func TopicFrameRx() Topic { return T("cec", "frame", "rx") }
func TopicFrameTx() Topic { return T("cec", "frame", "tx") }

// Engine lifecycle, retained: "starting", "ready".
func TopicEngineState() Topic { return T("cec", "state") }
