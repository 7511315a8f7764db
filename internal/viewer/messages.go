package viewer

import "spheretrace/visualizer/internal/simulation"

// Message types sent to the browser.
const (
	MessageScene = "scene"
	MessageFrame = "frame"
	MessageError = "error"
)

// SceneView is the wire form of a scene.
type SceneView struct {
	Circles     []simulation.Circle `json:"circles"`
	Boxes       []simulation.Box    `json:"boxes"`
	MaxDistance float64             `json:"maxDistance"`
}

// NewSceneView flattens a scene into its circles and boxes.
func NewSceneView(scene *simulation.Scene) SceneView {
	view := SceneView{
		Circles:     scene.Circles(),
		Boxes:       scene.Boxes(),
		MaxDistance: scene.MaxDistance(),
	}
	if view.Circles == nil {
		view.Circles = []simulation.Circle{}
	}
	if view.Boxes == nil {
		view.Boxes = []simulation.Box{}
	}
	return view
}

// SceneMessage announces the scene and viewport a session traces against.
type SceneMessage struct {
	Type     string              `json:"type"`
	Session  string              `json:"session"`
	Scene    SceneView           `json:"scene"`
	Viewport simulation.Viewport `json:"viewport"`
}

// FrameMessage carries one traced frame.
type FrameMessage struct {
	Type  string           `json:"type"`
	Frame uint64           `json:"frame"`
	Trace simulation.Trace `json:"trace"`
}

// ErrorMessage reports a rejected client event.
type ErrorMessage struct {
	Type    string `json:"type"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}
