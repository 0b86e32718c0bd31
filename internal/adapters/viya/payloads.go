package viya

// Wire shapes of the SAS Viya Compute REST API. Only the fields the gateway
// reads are declared.

type contextCollection struct {
	Items []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"items"`
}

type sessionRequest struct {
	Version     int                `json:"version"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Attributes  map[string]any     `json:"attributes"`
	Environment sessionEnvironment `json:"environment"`
}

type sessionEnvironment struct {
	Options []string `json:"options"`
}

type sessionResponse struct {
	ID string `json:"id"`
}

type jobRequest struct {
	Version     int            `json:"version"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Code        string         `json:"code"`
	Attributes  map[string]any `json:"attributes"`
}

type jobResponse struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	ConditionCode *int   `json:"conditionCode"`
}

type logCollection struct {
	Items []struct {
		Line string `json:"line"`
		Type string `json:"type"`
	} `json:"items"`
}

type listingCollection struct {
	Items []map[string]any `json:"items"`
}

type columnCollection struct {
	Items []struct {
		Name  string `json:"name"`
		Index int    `json:"index"`
	} `json:"items"`
}

type rowCollection struct {
	Items []struct {
		Cells []any `json:"cells"`
	} `json:"items"`
}
