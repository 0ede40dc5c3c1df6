package http

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/core/usecases"
)

// headerUserID carries the author recorded on new annotations.
const headerUserID = "X-User-ID"

type createAreaRequest struct {
	Name     string          `json:"name"`
	Boundary json.RawMessage `json:"boundary"` // Feature<Polygon> or Polygon
}

type createPassRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Location    json.RawMessage `json:"location"` // Feature<Point>, Point or [lng, lat]
}

// MapTokenHandler returns the map engine access token.
func MapTokenHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Tokens == nil {
			return errUnavailable(c, "map token not configured")
		}
		tok, err := deps.Tokens.FetchMapAccessToken(c.UserContext())
		if err != nil {
			LoggerFromCtx(c.UserContext()).Warn("map token fetch failed", "error", err)
			return errUnavailable(c, "map token unavailable")
		}
		c.Set("Cache-Control", "private, no-store")
		return c.JSON(fiber.Map{"token": tok})
	}
}

// ListAreasHandler returns the team's drive areas.
func ListAreasHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		areas, err := deps.Annotations.ListAreas(c.UserContext(), c.Params("team"))
		if err != nil {
			return errFromDomain(c, err)
		}
		page, pg := paginate(c, areas)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// CreateAreaHandler persists a drawn drive area.
func CreateAreaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createAreaRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Boundary) == 0 {
			return errBadRequest(c, "boundary is required")
		}
		f, err := domain.DecodeBoundary(req.Boundary)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			return errBadRequest(c, "boundary must be a Polygon")
		}

		area, err := deps.Annotations.CreateDriveArea(c.UserContext(), usecases.DriveAreaInput{
			TeamID:    c.Params("team"),
			Name:      req.Name,
			CreatedBy: c.Get(headerUserID),
			Boundary:  poly,
		})
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(area)
	}
}

// ListPassesHandler returns the team's hunting passes.
func ListPassesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		passes, err := deps.Annotations.ListPasses(c.UserContext(), c.Params("team"))
		if err != nil {
			return errFromDomain(c, err)
		}
		page, pg := paginate(c, passes)
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// CreatePassHandler persists a pass and its micro-area.
func CreatePassHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req createPassRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		pt, err := decodePoint(req.Location)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		pass, err := deps.Annotations.CreatePass(c.UserContext(), usecases.PassInput{
			TeamID:      c.Params("team"),
			Name:        req.Name,
			Description: req.Description,
			CreatedBy:   c.Get(headerUserID),
			Location:    pt,
		})
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(pass)
	}
}

// FeaturesHandler returns the team's areas and passes as one GeoJSON
// FeatureCollection. Records with unreadable geometry are left out.
func FeaturesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		team := c.Params("team")

		areas, err := deps.Annotations.ListAreas(ctx, team)
		if err != nil {
			return errFromDomain(c, err)
		}
		passes, err := deps.Annotations.ListPasses(ctx, team)
		if err != nil {
			return errFromDomain(c, err)
		}

		fc := geojson.NewFeatureCollection()
		for _, a := range areas {
			poly, err := domain.AreaPolygon(a)
			if err != nil {
				continue
			}
			f := geojson.NewFeature(poly)
			f.ID = a.ID
			f.Properties["type"] = "area"
			f.Properties["kind"] = a.Kind
			f.Properties["name"] = a.Name
			fc.Append(f)
		}
		for _, p := range passes {
			pt, err := domain.PassPoint(p)
			if err != nil {
				continue
			}
			f := geojson.NewFeature(pt)
			f.ID = p.ID
			f.Properties["type"] = "pass"
			f.Properties["name"] = p.Name
			f.Properties["drive_area_id"] = p.DriveAreaID
			if p.Description != "" {
				f.Properties["description"] = p.Description
			}
			fc.Append(f)
		}

		c.Set(fiber.HeaderContentType, "application/geo+json")
		data, err := fc.MarshalJSON()
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.Send(data)
	}
}

// decodePoint accepts a Feature<Point>, a Point geometry or a bare
// [lng, lat] pair.
func decodePoint(raw json.RawMessage) (orb.Point, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return orb.Point{}, errors.New("location is required")
	}
	if strings.HasPrefix(trimmed, "[") {
		var pair []float64
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			return orb.Point{}, errors.New("location must be [lng, lat]")
		}
		return orb.Point{pair[0], pair[1]}, nil
	}
	g, err := domain.DecodePassLocation(raw)
	if err != nil {
		return orb.Point{}, err
	}
	pt, ok := g.Coordinates.(orb.Point)
	if !ok {
		return orb.Point{}, errors.New("location must be a Point")
	}
	return pt, nil
}
