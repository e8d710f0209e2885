package api

import "signaldesk/pkg/signaldesk"

type analysisPayload struct {
	Symbol    string                    `json:"symbol"`
	Profile   signaldesk.UserProfile    `json:"profile"`
	Positions []signaldesk.OpenPosition `json:"positions"`
}

type indicatorsResponse struct {
	Symbol     string                  `json:"symbol"`
	Quote      signaldesk.Quote        `json:"quote"`
	Indicators signaldesk.IndicatorSet `json:"indicators"`
	Bars       int                     `json:"bars"`
	FromCache  bool                    `json:"from_cache"`
}

type modelsResponse struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider,omitempty"`
}
