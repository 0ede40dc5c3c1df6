package http

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/paulmach/orb"

	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/pkg/geospatial"
)

// geoJSONScalar passes GeoJSON values through as plain JSON objects.
var geoJSONScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "GeoJSON",
	Description: "A GeoJSON object",
	Serialize: func(value interface{}) interface{} {
		data, err := json.Marshal(value)
		if err != nil {
			return nil
		}
		var out interface{}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil
		}
		return out
	},
})

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	timeField := func(get func(interface{}) time.Time) *graphql.Field {
		return &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return get(p.Source).UTC().Format(time.RFC3339), nil
			},
		}
	}

	areaType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DriveArea",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"team_id":    &graphql.Field{Type: graphql.String},
			"name":       &graphql.Field{Type: graphql.String},
			"kind":       &graphql.Field{Type: graphql.String},
			"created_by": &graphql.Field{Type: graphql.String},
			"boundary":   &graphql.Field{Type: geoJSONScalar},
			"created_at": timeField(func(s interface{}) time.Time { return s.(domain.DriveArea).CreatedAt }),
		},
	})

	passType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HuntingPass",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"team_id":       &graphql.Field{Type: graphql.String},
			"drive_area_id": &graphql.Field{Type: graphql.String},
			"name":          &graphql.Field{Type: graphql.String},
			"description":   &graphql.Field{Type: graphql.String},
			"created_by":    &graphql.Field{Type: graphql.String},
			"location":      &graphql.Field{Type: geoJSONScalar},
			"lng": &graphql.Field{
				Type: graphql.Float,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt, err := domain.PassPoint(p.Source.(domain.HuntingPass))
					if err != nil {
						return nil, nil
					}
					return pt.Lon(), nil
				},
			},
			"lat": &graphql.Field{
				Type: graphql.Float,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					pt, err := domain.PassPoint(p.Source.(domain.HuntingPass))
					if err != nil {
						return nil, nil
					}
					return pt.Lat(), nil
				},
			},
			"created_at": timeField(func(s interface{}) time.Time { return s.(domain.HuntingPass).CreatedAt }),
		},
	})

	teamArg := graphql.FieldConfigArgument{
		"team": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"areas": &graphql.Field{
				Type:        graphql.NewList(areaType),
				Description: "Drive areas of a team, pass micro-areas included",
				Args:        teamArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Annotations.ListAreas(p.Context, p.Args["team"].(string))
				},
			},
			"passes": &graphql.Field{
				Type:        graphql.NewList(passType),
				Description: "Hunting passes of a team",
				Args:        teamArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Annotations.ListPasses(p.Context, p.Args["team"].(string))
				},
			},
			"bounds": &graphql.Field{
				Type:        graphql.NewList(graphql.Float),
				Description: "Union bounding box [minLng, minLat, maxLng, maxLat] of a team's drive areas",
				Args:        teamArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					areas, err := deps.Annotations.ListAreas(p.Context, p.Args["team"].(string))
					if err != nil {
						return nil, err
					}
					var polys []orb.Polygon
					for _, a := range areas {
						if poly, err := domain.AreaPolygon(a); err == nil {
							polys = append(polys, poly)
						}
					}
					b, ok := geospatial.UnionBound(polys...)
					if !ok {
						return nil, nil
					}
					return []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
