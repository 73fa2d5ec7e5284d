package request

// SchedulerRequest represents the JSON body for scheduler control.
type SchedulerRequest struct {
	// Action controls the scheduler. Allowed values:
	// - "start": start running reconciliation cycles
	// - "stop":  stop running reconciliation cycles
	Action string `json:"action"`
}

// LeadRequest is one recipient of a campaign launched over HTTP.
type LeadRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	InterestArea string `json:"interestArea"`
}

// CampaignRequest launches a campaign. When Leads is empty the configured
// leads file is used instead.
type CampaignRequest struct {
	Leads []LeadRequest `json:"leads"`
}

// ProviderSendRequest is the body of POST /send on the provider.
type ProviderSendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}
