package voiceai

// CallConfig is the body of a create-call request.
type CallConfig struct {
	SystemPrompt         string               `json:"systemPrompt"`
	Model                string               `json:"model"`
	Voice                string               `json:"voice"`
	InactivityMessages   []InactivityMessage  `json:"inactivityMessages"`
	ExperimentalSettings ExperimentalSettings `json:"experimentalSettings"`
	Temperature          float64              `json:"temperature"`
	FirstSpeaker         string               `json:"firstSpeaker"`
	LanguageHint         string               `json:"languageHint"`
	Medium               Medium               `json:"medium"`
	VADSettings          VADSettings          `json:"vadSettings"`
	SelectedTools        []SelectedTool       `json:"selectedTools"`
}

type InactivityMessage struct {
	Duration    string `json:"duration"`
	Message     string `json:"message"`
	EndBehavior string `json:"endBehavior,omitempty"`
}

type ExperimentalSettings struct {
	BackgroundNoiseFilter bool `json:"backgroundNoiseFilter"`
	DynamicEndpointing    bool `json:"dynamicEndpointing"`
}

// Medium selects the telephony bridge. Only Exotel is used.
type Medium struct {
	Exotel *struct{} `json:"exotel,omitempty"`
}

type VADSettings struct {
	TurnEndpointDelay           string  `json:"turnEndpointDelay"`
	MinimumTurnDuration         string  `json:"minimumTurnDuration"`
	MinimumInterruptionDuration string  `json:"minimumInterruptionDuration"`
	FrameActivationThreshold    float64 `json:"frameActivationThreshold"`
}

// SelectedTool is either an inline HTTP tool or a built-in tool by name.
type SelectedTool struct {
	TemporaryTool *TemporaryTool `json:"temporaryTool,omitempty"`
	ToolName      string         `json:"toolName,omitempty"`
}

type TemporaryTool struct {
	ModelToolName       string               `json:"modelToolName"`
	Description         string               `json:"description"`
	AutomaticParameters []AutomaticParameter `json:"automaticParameters"`
	DynamicParameters   []DynamicParameter   `json:"dynamicParameters"`
	HTTP                ToolHTTP             `json:"http"`
}

type AutomaticParameter struct {
	Name       string `json:"name"`
	Location   string `json:"location"`
	KnownValue string `json:"knownValue"`
}

type DynamicParameter struct {
	Name     string          `json:"name"`
	Location string          `json:"location"`
	Schema   ParameterSchema `json:"schema"`
	Required bool            `json:"required"`
}

type ParameterSchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
	Example     string   `json:"example,omitempty"`
}

type ToolHTTP struct {
	BaseURLPattern string `json:"baseUrlPattern"`
	HTTPMethod     string `json:"httpMethod"`
}

// Call is the provider's answer to a create-call request.
type Call struct {
	CallID  string `json:"callId"`
	JoinURL string `json:"joinUrl"`
	Created string `json:"created,omitempty"`
}
