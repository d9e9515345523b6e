package domain

// GrangerEdge is one row of the static Granger-causality edge table the
// causal network is loaded from at startup. Lag is expressed in the time
// unit of the underlying series (weeks in the reference deployment).
type GrangerEdge struct {
	Cause      string  `json:"cause" validate:"required"`
	Effect     string  `json:"effect" validate:"required"`
	FStatistic float64 `json:"f_statistic"`
	PValue     float64 `json:"p_value"`
	Lag        int     `json:"lag"`
}

// EdgeMetadata is the attribute set carried by one directed edge.
type EdgeMetadata struct {
	FStatistic float64 `json:"f_statistic"`
	PValue     float64 `json:"p_value"`
	Lag        int     `json:"lag"`
}
