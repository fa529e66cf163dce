package tools

import "context"

// Resource is a read-only view backed by a tool called with its defaults
type Resource struct {
	Name        string `json:"name"`
	URI         string `json:"uri"`
	Description string `json:"description"`
	Tool        string `json:"tool"`
}

var resources = []Resource{
	{Name: "cost-summary", URI: "finops://cost-summary", Description: "Cost summary for the last 30 days", Tool: "get_cost_summary"},
	{Name: "expensive-queries", URI: "finops://expensive-queries", Description: "Top 20 queries of the last 7 days", Tool: "get_expensive_queries"},
	{Name: "project-costs", URI: "finops://project-costs", Description: "Cost per project or database for the last 30 days", Tool: "get_project_costs"},
	{Name: "cost-trends", URI: "finops://cost-trends", Description: "Daily cost trend for the last 30 days", Tool: "get_cost_trends"},
}

// Resources lists the readable resources
func (r *Registry) Resources() []Resource {
	out := make([]Resource, len(resources))
	copy(out, resources)
	return out
}

// ReadResource calls the resource's tool with default arguments. ok is
// false for an unknown resource.
func (r *Registry) ReadResource(ctx context.Context, name, caller string) (resp Response, ok bool) {
	for _, res := range resources {
		if res.Name == name || res.URI == name {
			return r.Call(ctx, res.Tool, nil, caller), true
		}
	}
	return Response{}, false
}
