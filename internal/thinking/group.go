package thinking

// Cluster is a render unit: consecutive parameter segments collapse into a
// single cluster so they display as one list, every other segment stands
// alone in original order.
type Cluster struct {
	Kind     Kind
	Segments []Segment
}

func Group(segments []Segment) []Cluster {
	var clusters []Cluster
	for _, seg := range segments {
		if seg.Kind == KindParameter && len(clusters) > 0 && clusters[len(clusters)-1].Kind == KindParameter {
			last := &clusters[len(clusters)-1]
			last.Segments = append(last.Segments, seg)
			continue
		}
		clusters = append(clusters, Cluster{Kind: seg.Kind, Segments: []Segment{seg}})
	}
	return clusters
}
