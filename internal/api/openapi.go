package api

import (
	"github.com/JaimeStill/loam/internal/config"
	"github.com/JaimeStill/loam/pkg/openapi"
	"github.com/JaimeStill/loam/pkg/routes"
	"github.com/JaimeStill/loam/pkg/validation"
)

// Spec describes the API surface as an OpenAPI 3.1 document.
func Spec(cfg *config.Config) *openapi.Spec {
	opts := append(cfg.API.OpenAPI.Options(), openapi.WithServer(cfg.API.BasePath))
	spec := openapi.NewSpec(cfg.API.OpenAPI.Title, cfg.Version, opts...)
	spec.Components.AddSchemas(schemas())
	spec.Components.AddResponses(map[string]*openapi.Response{
		"Gone":            {Description: "Capture session closed"},
		"PayloadTooLarge": {Description: "File exceeds the upload size limit"},
	})

	captureID := openapi.PathParam("id", "Capture session ID")
	submissionID := openapi.PathParam("id", "Submission ID")

	captureState := func(summary string) *openapi.Operation {
		return &openapi.Operation{
			Summary:    summary,
			Tags:       []string{"captures"},
			Parameters: []*openapi.Parameter{captureID},
			Responses: map[int]*openapi.Response{
				200: openapi.ResponseJSON("Capture state", "CaptureView"),
				303: openapi.ResponseRef("SeeOther"),
				404: openapi.ResponseRef("NotFound"),
				409: openapi.ResponseRef("Conflict"),
			},
		}
	}

	spec.Paths = map[string]*openapi.PathItem{
		"/auth/login": {
			Post: &openapi.Operation{
				Summary:     "Establish a session",
				Tags:        []string{"auth"},
				RequestBody: openapi.RequestBodyJSON("Credentials", true),
				Responses: map[int]*openapi.Response{
					200: openapi.ResponseJSON("Session established", "Login"),
					400: openapi.ResponseRef("BadRequest"),
					401: {Description: "Credentials rejected"},
				},
			},
		},
		"/auth/logout": {
			Post: &openapi.Operation{
				Summary:   "End the current session",
				Tags:      []string{"auth"},
				Responses: map[int]*openapi.Response{204: {Description: "Session ended"}},
			},
		},
		"/auth/me": {
			Get: &openapi.Operation{
				Summary: "Current session",
				Tags:    []string{"auth"},
				Responses: map[int]*openapi.Response{
					200: openapi.ResponseJSON("Current session", "Session"),
					401: {Description: "No live session"},
				},
			},
		},
		"/auth/authorize": {
			Get: &openapi.Operation{
				Summary: "Evaluate a navigation destination",
				Tags:    []string{"auth"},
				Parameters: []*openapi.Parameter{
					openapi.QueryParam("destination", "string", "Destination path", true),
				},
				Responses: map[int]*openapi.Response{
					200: openapi.ResponseJSON("Decision", "Decision"),
					400: openapi.ResponseRef("BadRequest"),
				},
			},
		},
		"/status": {
			Get: &openapi.Operation{
				Summary: "Dependency status",
				Tags:    []string{"status"},
				Responses: map[int]*openapi.Response{
					200: openapi.ResponseJSON("All dependencies reachable", "Status"),
					503: openapi.ResponseJSON("A dependency is unreachable", "Status"),
				},
			},
		},
		"/captures": {
			Post: &openapi.Operation{
				Summary: "Open a capture session",
				Tags:    []string{"captures"},
				Responses: map[int]*openapi.Response{
					201: openapi.ResponseJSON("Capture session created", "CaptureView"),
					303: openapi.ResponseRef("SeeOther"),
				},
			},
		},
		"/captures/{id}": {
			Get: captureState("Capture session state"),
			Delete: &openapi.Operation{
				Summary:    "Leave the capture session",
				Tags:       []string{"captures"},
				Parameters: []*openapi.Parameter{captureID},
				Responses: map[int]*openapi.Response{
					204: {Description: "Camera released and in-flight submission discarded"},
					404: openapi.ResponseRef("NotFound"),
				},
			},
		},
		"/captures/{id}/mode": {
			Put: withBody(captureState("Select the capture mode"), openapi.RequestBodyJSON("ModeRequest", true)),
		},
		"/captures/{id}/record": {
			Put: withBody(captureState("Merge record fields"), openapi.RequestBodyJSON("Record", true)),
		},
		"/captures/{id}/file": {
			Post: withResponse(
				withBody(captureState("Attach an image or CSV file"), openapi.MultipartBody("file", "Image or CSV file")),
				413, openapi.ResponseRef("PayloadTooLarge"),
			),
		},
		"/captures/{id}/camera/acquire":  {Post: captureState("Start the live preview")},
		"/captures/{id}/camera/snapshot": {Post: captureState("Capture a still")},
		"/captures/{id}/camera/retake":   {Post: captureState("Discard the still")},
		"/captures/{id}/camera/release":  {Post: captureState("Stop the live preview")},
		"/captures/{id}/validate": {
			Post: &openapi.Operation{
				Summary:    "Validate the active payload",
				Tags:       []string{"captures"},
				Parameters: []*openapi.Parameter{captureID},
				Responses: map[int]*openapi.Response{
					200: openapi.ResponseJSON("Payload valid", "Verdict"),
					422: openapi.ResponseJSON("Payload invalid", "Verdict"),
					409: openapi.ResponseRef("Conflict"),
				},
			},
		},
		"/captures/{id}/submit": {
			Post: &openapi.Operation{
				Summary: "Validate and submit the active payload",
				Tags:    []string{"captures"},
				Parameters: []*openapi.Parameter{
					captureID,
					openapi.QueryParam("wait", "string", "Maximum time to wait for completion, e.g. 10s", false),
				},
				Responses: map[int]*openapi.Response{
					200: openapi.ResponseJSON("Submission completed", "CaptureView"),
					202: openapi.ResponseJSON("Submission pending", "CaptureView"),
					409: openapi.ResponseRef("Conflict"),
					410: openapi.ResponseRef("Gone"),
					422: openapi.ResponseJSON("Payload invalid", "CaptureView"),
				},
			},
		},
		"/submissions": {
			Get: &openapi.Operation{
				Summary: "List submissions",
				Tags:    []string{"submissions"},
				Parameters: []*openapi.Parameter{
					openapi.QueryParam("page", "integer", "Page number", false),
					openapi.QueryParam("page_size", "integer", "Results per page", false),
					openapi.QueryParam("search", "string", "Search filename and error", false),
					openapi.QueryParam("sort", "string", "Comma-separated sort fields, prefix - for descending (e.g. -completed_at)", false),
					openapi.QueryParam("mode", "string", "Capture mode filter", false),
					openapi.QueryParam("status", "string", "Outcome filter", false),
					openapi.QueryParam("since", "string", "Completed at or after (RFC 3339)", false),
					openapi.QueryParam("until", "string", "Completed before (RFC 3339)", false),
				},
				Responses: map[int]*openapi.Response{
					200: openapi.ResponseJSON("Submission page", "SubmissionPage"),
					400: openapi.ResponseRef("BadRequest"),
				},
			},
		},
		"/submissions/search": {
			Post: &openapi.Operation{
				Summary:     "Search submissions",
				Tags:        []string{"submissions"},
				RequestBody: openapi.RequestBodyJSON("SubmissionSearch", true),
				Responses: map[int]*openapi.Response{
					200: openapi.ResponseJSON("Submission page", "SubmissionPage"),
					400: openapi.ResponseRef("BadRequest"),
				},
			},
		},
		"/submissions/last": {
			Get: &openapi.Operation{
				Summary: "Most recent submission",
				Tags:    []string{"submissions"},
				Responses: map[int]*openapi.Response{
					200: openapi.ResponseJSON("Submission", "Submission"),
					404: openapi.ResponseRef("NotFound"),
				},
			},
		},
		"/submissions/{id}": {
			Get: &openapi.Operation{
				Summary:    "Find a submission",
				Tags:       []string{"submissions"},
				Parameters: []*openapi.Parameter{submissionID},
				Responses: map[int]*openapi.Response{
					200: openapi.ResponseJSON("Submission", "Submission"),
					404: openapi.ResponseRef("NotFound"),
				},
			},
		},
		"/submissions/{id}/payload": {
			Get: &openapi.Operation{
				Summary:    "Download the archived payload",
				Tags:       []string{"submissions"},
				Parameters: []*openapi.Parameter{submissionID},
				Responses: map[int]*openapi.Response{
					200: {Description: "Archived payload"},
					404: openapi.ResponseRef("NotFound"),
				},
			},
		},
	}

	return spec
}

func withBody(op *openapi.Operation, body *openapi.RequestBody) *openapi.Operation {
	op.RequestBody = body
	return op
}

func withResponse(op *openapi.Operation, code int, resp *openapi.Response) *openapi.Operation {
	op.Responses[code] = resp
	return op
}

func specRoutes(data []byte) routes.Group {
	return routes.Group{
		Prefix: "/openapi.json",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: openapi.ServeSpec(data)},
		},
	}
}

func schemas() map[string]*openapi.Schema {
	str := &openapi.Schema{Type: "string"}
	dateTime := &openapi.Schema{Type: "string", Format: "date-time"}
	uuid := &openapi.Schema{Type: "string", Format: "uuid"}

	return map[string]*openapi.Schema{
		"Credentials": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"id_token": {Type: "string", Description: "OIDC ID token"},
				"user_id":  {Type: "string", Description: "Development login only"},
			},
		},
		"Login": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"user_id":    str,
				"token":      str,
				"expires_at": dateTime,
			},
		},
		"Session": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"user_id":    str,
				"created_at": dateTime,
				"expires_at": dateTime,
			},
		},
		"Decision": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"allowed":  {Type: "boolean"},
				"redirect": str,
				"user_id":  str,
			},
		},
		"Status": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"version": str,
				"healthy": {Type: "boolean"},
				"checks":  {Type: "object", Description: "Dependency name to \"ok\" or a failure message"},
			},
		},
		"ModeRequest": {
			Type:     "object",
			Required: []string{"mode"},
			Properties: map[string]*openapi.Schema{
				"mode": {Type: "string", Enum: []any{"image", "camera", "manual", "csv"}},
			},
		},
		"Record":     recordSchema(validation.ManualEntry),
		"FieldError": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"field":   str,
				"code":    {Type: "string", Enum: []any{"missing", "not_a_number", "out_of_range"}},
				"message": str,
				"value":   str,
			},
		},
		"Verdict": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"status": {Type: "string", Enum: []any{"unvalidated", "valid", "invalid"}},
				"errors": {Type: "array", Items: openapi.SchemaRef("FieldError")},
			},
		},
		"CaptureView": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"id":         uuid,
				"created_at": dateTime,
				"mode":       {Type: "string", Enum: []any{"", "image", "camera", "manual", "csv"}},
				"phase":      {Type: "string", Enum: []any{"selecting", "capturing", "submitted"}},
				"verdict":    openapi.SchemaRef("Verdict"),
				"file":       {Type: "object", Description: "Attached file name, content type and size"},
				"record":     openapi.SchemaRef("Record"),
				"camera":     {Type: "object", Description: "Camera state, unavailable flag and captured still"},
				"submission": {Type: "object", Description: "Latest submission attempt: status, message and result"},
			},
		},
		"Submission": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"id":           uuid,
				"capture_id":   uuid,
				"mode":         str,
				"status":       {Type: "string", Enum: []any{"success", "error"}},
				"error":        str,
				"result":       {Type: "object", Description: "Prediction service response"},
				"filename":     str,
				"content_type": str,
				"size_bytes":   {Type: "integer"},
				"submitted_at": dateTime,
				"completed_at": dateTime,
			},
		},
		"SubmissionPage": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"data":        {Type: "array", Items: openapi.SchemaRef("Submission")},
				"total":       {Type: "integer"},
				"page":        {Type: "integer"},
				"page_size":   {Type: "integer"},
				"total_pages": {Type: "integer"},
				"has_next":    {Type: "boolean"},
			},
		},
		"SubmissionSearch": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"page":      {Type: "integer"},
				"page_size": {Type: "integer"},
				"search":    str,
				"sort":      str,
				"mode":      str,
				"status":    str,
				"since":     {Type: "string", Format: "date-time"},
				"until":     {Type: "string", Format: "date-time"},
			},
		},
	}
}

// recordSchema documents each field of rs as a raw string value. Numeric
// fields carry their accepted range in the description.
func recordSchema(rs validation.Ruleset) *openapi.Schema {
	schema := &openapi.Schema{
		Type:        "object",
		Description: "Raw field values keyed by field name",
		Properties:  make(map[string]*openapi.Schema, len(rs.Rules)),
	}
	for _, rule := range rs.Rules {
		desc := rule.Label
		if rule.Kind == validation.Numeric {
			desc += ", numeric in " + rule.Range()
		}
		schema.Properties[rule.Field] = &openapi.Schema{Type: "string", Description: desc}
		if rule.Required {
			schema.Required = append(schema.Required, rule.Field)
		}
	}
	return schema
}
