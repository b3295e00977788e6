package graph

// DefaultFlow returns the starter workflow shown on a fresh canvas:
// payment -> location -> gateway.
func DefaultFlow() ([]Node, []Edge) {
	nodes := []Node{
		{ID: "1", Kind: NodeKindPayment, Label: "Payment of $300", Position: Position{X: 250, Y: 50}},
		{ID: "2", Kind: NodeKindLocation, Label: "America", Position: Position{X: 250, Y: 150}},
		{ID: "3", Kind: NodeKindGateway, Label: "RazorPay", Position: Position{X: 250, Y: 250}},
	}
	edges := []Edge{
		{ID: EdgeID("1", "2"), Source: "1", Target: "2", Style: DefaultEdgeStyle},
		{ID: EdgeID("2", "3"), Source: "2", Target: "3", Style: DefaultEdgeStyle},
	}
	return nodes, edges
}
