package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span names.
const (
	SpanCreateArea  = "annotations.create_area"
	SpanCreatePass  = "annotations.create_pass"
	SpanSweepOrphan = "annotations.sweep_orphans"
	SpanRefresh     = "map.refresh"
)

// Attribute keys.
const (
	AttrTeamID  = attribute.Key("huntmap.team_id")
	AttrAreaID  = attribute.Key("huntmap.area_id")
	AttrPassID  = attribute.Key("huntmap.pass_id")
	AttrDeleted = attribute.Key("huntmap.deleted")
)
