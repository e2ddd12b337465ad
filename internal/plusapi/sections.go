package plusapi

// NewCacheSection builds the Section for NGINX Plus cache zone objects.
func NewCacheSection() *Section { return NewObjectSection(CacheExtractors) }

// NewSlabSection builds the Section for NGINX Plus shared-memory slab
// objects.
func NewSlabSection() *Section { return NewObjectSection(SlabExtractors) }

// NewStatusZoneSection builds the Section for NGINX Plus HTTP
// server_zone/status_zone objects.
func NewStatusZoneSection() *Section { return NewObjectSection(StatusZoneExtractors) }

// NewStreamSection builds the Section for NGINX Plus stream server_zone
// objects.
func NewStreamSection() *Section { return NewObjectSection(StreamExtractors) }

// NewUpstreamSection builds the Section for NGINX Plus HTTP upstream
// groups (per-peer plus group-level fields).
func NewUpstreamSection() *Section {
	return NewGroupSection(UpstreamPeerExtractors, UpstreamAggregateExtractors)
}

// NewStreamUpstreamSection builds the Section for NGINX Plus stream
// upstream groups (per-peer plus group-level fields).
func NewStreamUpstreamSection() *Section {
	return NewGroupSection(StreamUpstreamPeerExtractors, StreamUpstreamAggregateExtractors)
}
