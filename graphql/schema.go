// Package graphql defines the read-only GraphQL query surface over the
// vulnerability stores: the paginated primary listing and federated search.
package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/vulnfed/vulnfed-backend/database"
	"github.com/vulnfed/vulnfed-backend/internal/search"
	"github.com/vulnfed/vulnfed-backend/model"
)

// DescriptionType represents one language-tagged description entry
var DescriptionType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Description",
	Fields: graphql.Fields{
		"lang":  &graphql.Field{Type: graphql.String},
		"value": &graphql.Field{Type: graphql.String},
	},
})

// CVEType represents the common vulnerability record shape
var CVEType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CVE",
	Fields: graphql.Fields{
		"id":               &graphql.Field{Type: graphql.String, Resolve: cveField(func(r model.CVERecord) interface{} { return r.ID })},
		"sourceIdentifier": &graphql.Field{Type: graphql.String, Resolve: cveField(func(r model.CVERecord) interface{} { return r.SourceIdentifier })},
		"published":        &graphql.Field{Type: graphql.DateTime, Resolve: cveField(func(r model.CVERecord) interface{} { return r.Published })},
		"lastModified":     &graphql.Field{Type: graphql.DateTime, Resolve: cveField(func(r model.CVERecord) interface{} { return r.LastModified })},
		"vulnStatus":       &graphql.Field{Type: graphql.String, Resolve: cveField(func(r model.CVERecord) interface{} { return r.VulnStatus })},
		"descriptions":     &graphql.Field{Type: graphql.NewList(DescriptionType), Resolve: cveField(func(r model.CVERecord) interface{} { return r.Descriptions })},
		"references":       &graphql.Field{Type: graphql.NewList(graphql.String), Resolve: cveField(func(r model.CVERecord) interface{} { return r.References })},
		"severity":         &graphql.Field{Type: graphql.String, Resolve: cveField(func(r model.CVERecord) interface{} { return r.Severity })},
	},
})

// SearchResultType represents one federated hit with its provenance tag
var SearchResultType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SearchResult",
	Fields: graphql.Fields{
		"source": &graphql.Field{Type: graphql.String},
		"cve": &graphql.Field{
			Type: CVEType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if res, ok := p.Source.(search.Result); ok {
					return res.CVERecord, nil
				}
				return nil, nil
			},
		},
	},
})

// SearchPageType represents the federated search envelope
var SearchPageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SearchPage",
	Fields: graphql.Fields{
		"results": &graphql.Field{
			Type: graphql.NewList(SearchResultType),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if page, ok := p.Source.(search.Page); ok {
					return page.CVEs, nil
				}
				return nil, nil
			},
		},
		"total": &graphql.Field{Type: graphql.Int},
		"page":  &graphql.Field{Type: graphql.Int},
		"pages": &graphql.Field{Type: graphql.Int},
	},
})

// cveField adapts a typed accessor to a graphql resolver. Records arrive
// either directly or behind the embedding in search.Result.
func cveField(get func(model.CVERecord) interface{}) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		switch src := p.Source.(type) {
		case model.CVERecord:
			return get(src), nil
		case search.Result:
			return get(src.CVERecord), nil
		}
		return nil, nil
	}
}

// CreateSchema builds the query schema over the store and search engine.
func CreateSchema(store database.Store, engine *search.Engine) (graphql.Schema, error) {
	rootQuery := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"cves": &graphql.Field{
				Type: graphql.NewList(CVEType),
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					limit, _ := p.Args["limit"].(int)
					return store.FindCVEs(p.Context, database.CollCVE, database.Filter{}, "lastModified", 0, limit)
				},
			},
			"search": &graphql.Field{
				Type: SearchPageType,
				Args: graphql.FieldConfigArgument{
					"q":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"page":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 1},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q, _ := p.Args["q"].(string)
					page, _ := p.Args["page"].(int)
					limit, _ := p.Args["limit"].(int)
					return engine.Search(p.Context, q, page, limit)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: rootQuery})
}
