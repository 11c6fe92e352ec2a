package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/Sternrassler/closecrm-client/pkg/pagination"
)

// Resource is a CRUD collection under one API path.
type Resource struct {
	client *Client
	name   string
	path   string

	// params renders search options. Defaults to pagination.Options.Params.
	params func(pagination.Options) url.Values
}

func (c *Client) resource(name, path string) *Resource {
	return &Resource{client: c, name: name, path: path}
}

// Path returns the collection path, e.g. "/contact/".
func (r *Resource) Path() string {
	return r.path
}

func (r *Resource) searchParams(opts pagination.Options) url.Values {
	if r.params != nil {
		return r.params(opts)
	}
	return opts.Params()
}

// Search fetches one page of the collection.
func (r *Resource) Search(ctx context.Context, opts pagination.Options) (*Response, error) {
	return r.client.Get(ctx, r.path, r.searchParams(opts))
}

// List is Search for collections the API describes as listings.
func (r *Resource) List(ctx context.Context, opts pagination.Options) (*Response, error) {
	return r.Search(ctx, opts)
}

// SearchPage fetches one page and decodes its envelope. It is a
// pagination.SearchFunc.
func (r *Resource) SearchPage(ctx context.Context, opts pagination.Options) (pagination.Page[json.RawMessage], error) {
	resp, err := r.Search(ctx, opts)
	if err != nil {
		return pagination.Page[json.RawMessage]{}, err
	}
	var page pagination.Page[json.RawMessage]
	if err := resp.Decode(&page); err != nil {
		return pagination.Page[json.RawMessage]{}, fmt.Errorf("%s search: %w", r.name, err)
	}
	return page, nil
}

// Create posts a new object.
func (r *Resource) Create(ctx context.Context, data any) (*Response, error) {
	return r.client.Post(ctx, r.path, data)
}

// Read fetches one object by id.
func (r *Resource) Read(ctx context.Context, id string) (*Response, error) {
	path, err := r.objectPath(id)
	if err != nil {
		return nil, err
	}
	return r.client.Get(ctx, path, nil)
}

// Update replaces fields of one object.
func (r *Resource) Update(ctx context.Context, id string, data any) (*Response, error) {
	path, err := r.objectPath(id)
	if err != nil {
		return nil, err
	}
	return r.client.Put(ctx, path, data)
}

// Delete removes one object.
func (r *Resource) Delete(ctx context.Context, id string) (*Response, error) {
	path, err := r.objectPath(id)
	if err != nil {
		return nil, err
	}
	return r.client.Delete(ctx, path)
}

func (r *Resource) objectPath(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", &ValidationError{Resource: r.name, Message: "id is required"}
	}
	return r.path + url.PathEscape(id) + "/", nil
}

// requireFields checks that data, once encoded as a JSON object, has every
// field.
func requireFields(resource string, data any, fields ...string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%s: encode request body: %w", resource, err)
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return &ValidationError{Resource: resource, Message: "request body must be a JSON object"}
	}

	var missing []string
	for _, field := range fields {
		if _, ok := object[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Resource: resource, Fields: missing}
	}
	return nil
}

// LeadResource is the lead collection. Search turns filters into a query.
type LeadResource struct {
	*Resource
}

var quotedTerm = regexp.MustCompile(`^".*"$`)

// leadParams forwards every option as a parameter and, unless an explicit
// query is given, adds a query built from the filters as "field:value" terms.
// Field names with spaces are quoted.
func leadParams(opts pagination.Options) url.Values {
	params := opts.Params()
	filters := opts.Filters
	if opts.Query != "" || len(filters) == 0 {
		return params
	}

	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	terms := make([]string, 0, len(keys))
	for _, key := range keys {
		field := key
		if strings.Contains(field, " ") && !quotedTerm.MatchString(field) {
			field = `"` + field + `"`
		}
		terms = append(terms, field+":"+filters[key])
	}
	params.Set("query", strings.Join(terms, " "))
	return params
}

// Create posts a new lead. name is required.
func (r *LeadResource) Create(ctx context.Context, data any) (*Response, error) {
	if err := requireFields("Lead", data, "name"); err != nil {
		return nil, err
	}
	return r.Resource.Create(ctx, data)
}

// Merge merges the source lead into the destination lead.
func (r *LeadResource) Merge(ctx context.Context, data any) (*Response, error) {
	if err := requireFields("Lead Merge", data, "source", "destination"); err != nil {
		return nil, err
	}
	return r.client.Post(ctx, r.path+"merge/", data)
}

// ActivityResource is the activity collection and its typed sub-collections.
type ActivityResource struct {
	*Resource

	Note            *Resource
	Email           *Resource
	Call            *Resource
	SMS             *Resource
	Meeting         *Resource
	WhatsAppMessage *WhatsAppMessageResource
}

// WhatsAppMessageResource accepts query parameters on create.
type WhatsAppMessageResource struct {
	*Resource
}

// CreateWithParams posts a message with extra query parameters.
func (r *WhatsAppMessageResource) CreateWithParams(ctx context.Context, data any, params url.Values) (*Response, error) {
	return r.client.Do(ctx, http.MethodPost, r.path, params, data)
}

// CustomFieldResource groups the custom field collections per object type.
type CustomFieldResource struct {
	Lead             *Resource
	Contact          *Resource
	Opportunity      *Resource
	Activity         *Resource
	CustomObjectType *Resource
}

// CustomActivity returns the collection of one custom activity type.
func (c *Client) CustomActivity(typeID string) (*Resource, error) {
	if strings.TrimSpace(typeID) == "" {
		return nil, &ValidationError{Resource: "Custom Activity", Message: "type id is required"}
	}
	return c.resource("Custom Activity", "/custom_activity/"+url.PathEscape(typeID)+"/"), nil
}

// UserResource is the user collection.
type UserResource struct {
	*Resource
}

// Me fetches the user owning the API key.
func (r *UserResource) Me(ctx context.Context) (*Response, error) {
	return r.client.Get(ctx, "/me/", nil)
}

// StatusResource groups lead and opportunity statuses.
type StatusResource struct {
	Lead        *Resource
	Opportunity *Resource
}

// ReportResource exposes the reporting endpoints.
type ReportResource struct {
	client *Client
}

// ActivityMetrics lists the predefined activity report metrics.
func (r *ReportResource) ActivityMetrics(ctx context.Context) (*Response, error) {
	return r.client.Get(ctx, "/report/activity/metrics/", nil)
}

// Activity runs an activity report.
func (r *ReportResource) Activity(ctx context.Context, data any) (*Response, error) {
	return r.client.Post(ctx, "/report/activity/", data)
}

// SentEmails reports sent emails grouped by template.
func (r *ReportResource) SentEmails(ctx context.Context, organizationID string, opts pagination.Options) (*Response, error) {
	return r.organizationReport(ctx, "/report/sent_emails/", organizationID, opts)
}

// LeadStatuses reports lead status changes.
func (r *ReportResource) LeadStatuses(ctx context.Context, organizationID string, opts pagination.Options) (*Response, error) {
	return r.organizationReport(ctx, "/report/statuses/lead/", organizationID, opts)
}

// OpportunityStatuses reports opportunity status changes.
func (r *ReportResource) OpportunityStatuses(ctx context.Context, organizationID string, opts pagination.Options) (*Response, error) {
	return r.organizationReport(ctx, "/report/statuses/opportunity/", organizationID, opts)
}

// Custom runs a custom report.
func (r *ReportResource) Custom(ctx context.Context, organizationID string, opts pagination.Options) (*Response, error) {
	return r.organizationReport(ctx, "/report/custom/", organizationID, opts)
}

// CustomFields lists the fields available to custom reports.
func (r *ReportResource) CustomFields(ctx context.Context) (*Response, error) {
	return r.client.Get(ctx, "/report/custom/fields/", nil)
}

// FunnelTotals runs the opportunity funnel report (totals).
func (r *ReportResource) FunnelTotals(ctx context.Context, data any) (*Response, error) {
	return r.client.Post(ctx, "/report/funnel/opportunity/totals/", data)
}

// FunnelStages runs the opportunity funnel report (stages).
func (r *ReportResource) FunnelStages(ctx context.Context, data any) (*Response, error) {
	return r.client.Post(ctx, "/report/funnel/opportunity/stages/", data)
}

func (r *ReportResource) organizationReport(ctx context.Context, prefix, organizationID string, opts pagination.Options) (*Response, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, &ValidationError{Resource: "Report", Message: "organization id is required"}
	}
	return r.client.Get(ctx, prefix+url.PathEscape(organizationID)+"/", opts.Params())
}

// EventResource is the event log. It uses cursor pagination, so its
// parameters are sent as given instead of through pagination.Options.
type EventResource struct {
	client *Client
}

// Search fetches events matching params.
func (r *EventResource) Search(ctx context.Context, params url.Values) (*Response, error) {
	return r.client.Get(ctx, "/event/", params)
}

// Read fetches one event.
func (r *EventResource) Read(ctx context.Context, id string) (*Response, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Resource: "Event", Message: "id is required"}
	}
	return r.client.Get(ctx, "/event/"+url.PathEscape(id)+"/", nil)
}

// BulkResource starts bulk jobs.
type BulkResource struct {
	client *Client
}

// Delete starts a bulk delete of the leads matching data's query.
func (r *BulkResource) Delete(ctx context.Context, data any) (*Response, error) {
	return r.client.Post(ctx, "/bulk_delete/", data)
}

// Email starts a bulk email to the leads matching data's query.
func (r *BulkResource) Email(ctx context.Context, data any) (*Response, error) {
	return r.client.Post(ctx, "/bulk_email/", data)
}

// Update starts a bulk edit of the leads matching data's query.
func (r *BulkResource) Update(ctx context.Context, data any) (*Response, error) {
	return r.client.Post(ctx, "/bulk_update/", data)
}

// Action starts a generic bulk action described by data.
func (r *BulkResource) Action(ctx context.Context, data any) (*Response, error) {
	return r.client.Post(ctx, "/bulk_action/", data)
}

// Lookup returns the id-addressable collection with the given CLI-style
// name, such as "lead" or "custom_field.lead".
func (c *Client) Lookup(name string) (*Resource, bool) {
	r, ok := c.catalogue()[name]
	return r, ok
}

// ResourceNames lists the names accepted by Lookup, sorted.
func (c *Client) ResourceNames() []string {
	catalogue := c.catalogue()
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Client) catalogue() map[string]*Resource {
	return map[string]*Resource{
		"lead":                            c.Lead.Resource,
		"contact":                         c.Contact,
		"activity":                        c.Activity.Resource,
		"activity.note":                   c.Activity.Note,
		"activity.email":                  c.Activity.Email,
		"activity.call":                   c.Activity.Call,
		"activity.sms":                    c.Activity.SMS,
		"activity.meeting":                c.Activity.Meeting,
		"activity.whatsapp_message":       c.Activity.WhatsAppMessage.Resource,
		"opportunity":                     c.Opportunity,
		"task":                            c.Task,
		"custom_field.lead":               c.CustomField.Lead,
		"custom_field.contact":            c.CustomField.Contact,
		"custom_field.opportunity":        c.CustomField.Opportunity,
		"custom_field.activity":           c.CustomField.Activity,
		"custom_field.custom_object_type": c.CustomField.CustomObjectType,
		"custom_object_type":              c.CustomObjectType,
		"custom_object":                   c.CustomObject,
		"user":                            c.User.Resource,
		"organization":                    c.Organization,
		"pipeline":                        c.Pipeline,
		"status.lead":                     c.Status.Lead,
		"status.opportunity":              c.Status.Opportunity,
		"email_template":                  c.EmailTemplate,
		"saved_search":                    c.SavedSearch,
		"smart_view":                      c.SmartView,
		"sequence":                        c.Sequence,
		"sequence_subscription":           c.SequenceSubscription,
		"webhook":                         c.Webhook,
		"email_thread":                    c.EmailThread,
		"connected_account":               c.ConnectedAccount,
	}
}

func (c *Client) initResources() {
	lead := c.resource("Lead", "/lead/")
	lead.params = leadParams
	c.Lead = &LeadResource{Resource: lead}

	c.Contact = c.resource("Contact", "/contact/")
	c.Activity = &ActivityResource{
		Resource:        c.resource("Activity", "/activity/"),
		Note:            c.resource("Note", "/activity/note/"),
		Email:           c.resource("Email", "/activity/email/"),
		Call:            c.resource("Call", "/activity/call/"),
		SMS:             c.resource("SMS", "/activity/sms/"),
		Meeting:         c.resource("Meeting", "/activity/meeting/"),
		WhatsAppMessage: &WhatsAppMessageResource{Resource: c.resource("WhatsApp Message", "/activity/whatsapp_message/")},
	}
	c.Opportunity = c.resource("Opportunity", "/opportunity/")
	c.Task = c.resource("Task", "/task/")
	c.CustomField = &CustomFieldResource{
		Lead:             c.resource("Lead Custom Field", "/custom_field/lead/"),
		Contact:          c.resource("Contact Custom Field", "/custom_field/contact/"),
		Opportunity:      c.resource("Opportunity Custom Field", "/custom_field/opportunity/"),
		Activity:         c.resource("Activity Custom Field", "/custom_field/activity/"),
		CustomObjectType: c.resource("Custom Object Custom Field", "/custom_field/custom_object_type/"),
	}
	c.CustomObjectType = c.resource("Custom Object Type", "/custom_object_type/")
	c.CustomObject = c.resource("Custom Object", "/custom_object/")
	c.User = &UserResource{Resource: c.resource("User", "/user/")}
	c.Organization = c.resource("Organization", "/organization/")
	c.Pipeline = c.resource("Pipeline", "/pipeline/")
	c.Status = &StatusResource{
		Lead:        c.resource("Lead Status", "/status/lead/"),
		Opportunity: c.resource("Opportunity Status", "/status/opportunity/"),
	}
	c.EmailTemplate = c.resource("Email Template", "/email_template/")
	c.SavedSearch = c.resource("Saved Search", "/saved_search/")
	c.SmartView = c.SavedSearch
	c.Sequence = c.resource("Sequence", "/sequence/")
	c.SequenceSubscription = c.resource("Sequence Subscription", "/sequence_subscription/")
	c.Report = &ReportResource{client: c}
	c.Event = &EventResource{client: c}
	c.Webhook = c.resource("Webhook", "/webhook/")
	c.EmailThread = c.resource("Email Thread", "/activity/emailthread/")
	c.ConnectedAccount = c.resource("Connected Account", "/connected_account/")
	c.Bulk = &BulkResource{client: c}
}
