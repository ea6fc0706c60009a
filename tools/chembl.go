package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/covailent/mcpd/schema"
	"github.com/covailent/mcpd/tool"
)

const (
	defaultChemblBaseURL = "https://www.ebi.ac.uk/chembl/api/data"
	defaultChemblTimeout = 10 * time.Second

	// activityPageLimit caps one bioactivity query to a single page.
	activityPageLimit = 50

	maxChemblResponseBytes = 4 << 20
)

// chemblClient is a thin REST client for the ChEMBL data API. All lookups
// are single GETs returning JSON; fields are plucked with gjson rather than
// decoded into structs, since only a handful of paths matter.
type chemblClient struct {
	baseURL string
	client  *http.Client
}

func newChemblClient(cfg Config) *chemblClient {
	base := cfg.ChemblBaseURL
	if base == "" {
		base = defaultChemblBaseURL
	}
	return &chemblClient{
		baseURL: base,
		client:  &http.Client{Timeout: timeoutOrDefault(cfg.ChemblTimeoutMS, defaultChemblTimeout)},
	}
}

// get performs one GET and returns the status code with the body. Non-2xx
// statuses are not errors here; callers decide which ones are soft misses.
func (c *chemblClient) get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build chembl request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("chembl request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChemblResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read chembl response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *chemblClient) checkHealth(ctx context.Context) error {
	status, _, err := c.get(ctx, "/molecule.json?limit=1")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("chembl probe returned status %d", status)
	}
	return nil
}

// ChemblTools builds the ChEMBL lookup tools: fetch_compound_by_name and
// get_activity_data_for_target. Both share one HTTP client and health probe.
func ChemblTools(cfg Config) ([]tool.Tool, error) {
	client := newChemblClient(cfg)

	fetch, err := tool.New(tool.Declaration{
		Name:        "fetch_compound_by_name",
		Description: "Retrieve compound metadata from ChEMBL by compound name.",
		Input: schema.Obj(
			schema.Field{Name: "name", Type: schema.TypeString, Required: true, Description: "Preferred compound name or synonym."},
		),
		Output: schema.Obj(
			schema.Field{Name: "chembl_id", Type: schema.TypeString, Description: "ChEMBL compound identifier."},
			schema.Field{Name: "name", Type: schema.TypeString, Description: "Matched compound name."},
			schema.Field{Name: "smiles", Type: schema.TypeString, Description: "Canonical SMILES string."},
			schema.Field{Name: "molecular_formula", Type: schema.TypeString, Description: "Molecular formula."},
			schema.Field{Name: "molecular_weight", Type: schema.TypeFloat, Description: "Molecular weight."},
			logsField("Logs detailing the fetch process."),
		),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			return client.fetchCompoundByName(ctx, inputs["name"].(string))
		},
	})
	if err != nil {
		return nil, err
	}

	activity, err := tool.New(tool.Declaration{
		Name:        "get_activity_data_for_target",
		Description: "Fetch bioactivity data from ChEMBL for a given UniProt ID.",
		Input: schema.Obj(
			schema.Field{Name: "uniprot_id", Type: schema.TypeString, Required: true, Description: "UniProt accession for target protein."},
		),
		Output: schema.Obj(
			schema.Field{Name: "target_chembl_id", Type: schema.TypeString, Description: "ChEMBL target ID."},
			schema.Field{
				Name: "activities", Type: schema.TypeArray, Required: true,
				Description: "List of activity records.",
				Items: &schema.Field{
					Name: "activity", Type: schema.TypeObject,
					Properties: []schema.Field{
						{Name: "compound_chembl_id", Type: schema.TypeString, Required: true, Description: "ChEMBL compound ID."},
						{Name: "standard_type", Type: schema.TypeString, Description: "Assayed measurement type, e.g. IC50."},
						{Name: "standard_value", Type: schema.TypeFloat, Description: "Measured value."},
						{Name: "standard_units", Type: schema.TypeString, Description: "Units of measurement."},
						{Name: "pchembl_value", Type: schema.TypeFloat, Description: "Negative log molar activity value."},
					},
				},
			},
			logsField("Logs detailing the activity fetch process."),
		),
		Run: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
			return client.activityDataForTarget(ctx, inputs["uniprot_id"].(string))
		},
	})
	if err != nil {
		return nil, err
	}

	return []tool.Tool{
		checkedTool{Tool: fetch, check: client.checkHealth},
		checkedTool{Tool: activity, check: client.checkHealth},
	}, nil
}

// fetchCompoundByName resolves a compound name through the molecule search
// endpoint. A miss (no match, 404, rate limit) is not an execution failure:
// the tool returns an output with the optional fields absent and explains
// itself in the logs.
func (c *chemblClient) fetchCompoundByName(ctx context.Context, name string) (map[string]any, error) {
	logs := []string{}
	path := "/molecule/search/" + url.PathEscape(name) + ".json?limit=1"
	logs = append(logs, "Querying ChEMBL molecule search endpoint: "+c.baseURL+path)

	status, body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		logs = append(logs, fmt.Sprintf("No compound found for name: %s (404).", name))
		return map[string]any{"logs": logsValue(logs)}, nil
	case http.StatusTooManyRequests:
		logs = append(logs, "Rate limit exceeded when querying compound by name.")
		return map[string]any{"logs": logsValue(logs)}, nil
	default:
		return nil, fmt.Errorf("chembl molecule search returned status %d", status)
	}

	mol := gjson.GetBytes(body, "molecules.0")
	if !mol.Exists() {
		mol = gjson.GetBytes(body, "molecule.0")
	}
	if !mol.Exists() {
		logs = append(logs, fmt.Sprintf("No results returned for name: %s.", name))
		return map[string]any{"logs": logsValue(logs)}, nil
	}

	chemblID := mol.Get("molecule_chembl_id").String()
	prefName := mol.Get("pref_name").String()
	logs = append(logs, fmt.Sprintf("Found compound: %s (%s).", chemblID, prefName))

	structure := mol.Get("molecule_structures")
	return map[string]any{
		"chembl_id":         chemblID,
		"name":              prefName,
		"smiles":            structure.Get("canonical_smiles").String(),
		"molecular_formula": mol.Get("molecule_properties.full_molformula").String(),
		"molecular_weight":  mol.Get("molecule_properties.full_mwt").Float(),
		"logs":              logsValue(logs),
	}, nil
}

// activityDataForTarget maps a UniProt accession to a ChEMBL target and
// fetches one page of activity records for it.
func (c *chemblClient) activityDataForTarget(ctx context.Context, uniprotID string) (map[string]any, error) {
	logs := []string{}

	targetPath := "/target/search/" + url.PathEscape(uniprotID) + ".json?limit=1"
	logs = append(logs, "Querying ChEMBL target search endpoint: "+c.baseURL+targetPath)

	status, body, err := c.get(ctx, targetPath)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		logs = append(logs, fmt.Sprintf("No target found for UniProt ID: %s (404).", uniprotID))
		return map[string]any{"activities": []any{}, "logs": logsValue(logs)}, nil
	case http.StatusTooManyRequests:
		logs = append(logs, "Rate limit exceeded when querying target.")
		return map[string]any{"activities": []any{}, "logs": logsValue(logs)}, nil
	default:
		return nil, fmt.Errorf("chembl target search returned status %d", status)
	}

	target := gjson.GetBytes(body, "targets.0.target_chembl_id")
	if !target.Exists() {
		logs = append(logs, fmt.Sprintf("No targets returned for UniProt ID: %s.", uniprotID))
		return map[string]any{"activities": []any{}, "logs": logsValue(logs)}, nil
	}
	targetID := target.String()
	logs = append(logs, fmt.Sprintf("Mapped UniProt %s to ChEMBL target %s.", uniprotID, targetID))

	activityPath := fmt.Sprintf("/activity.json?target_chembl_id=%s&limit=%d", url.QueryEscape(targetID), activityPageLimit)
	logs = append(logs, "Querying ChEMBL activity endpoint: "+c.baseURL+activityPath)

	status, body, err = c.get(ctx, activityPath)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		logs = append(logs, fmt.Sprintf("No activity data for target %s (404).", targetID))
		return map[string]any{"target_chembl_id": targetID, "activities": []any{}, "logs": logsValue(logs)}, nil
	case http.StatusTooManyRequests:
		logs = append(logs, "Rate limit exceeded when querying activities.")
		return map[string]any{"target_chembl_id": targetID, "activities": []any{}, "logs": logsValue(logs)}, nil
	default:
		return nil, fmt.Errorf("chembl activity query returned status %d", status)
	}

	activities := []any{}
	for _, rec := range gjson.GetBytes(body, "activities").Array() {
		record := map[string]any{
			"compound_chembl_id": rec.Get("molecule_chembl_id").String(),
		}
		if v := rec.Get("standard_type"); v.Exists() && v.Type == gjson.String {
			record["standard_type"] = v.String()
		}
		if f, ok := numericField(rec.Get("standard_value")); ok {
			record["standard_value"] = f
		}
		if v := rec.Get("standard_units"); v.Exists() && v.Type == gjson.String {
			record["standard_units"] = v.String()
		}
		if f, ok := numericField(rec.Get("pchembl_value")); ok {
			record["pchembl_value"] = f
		}
		activities = append(activities, record)
	}
	logs = append(logs, fmt.Sprintf("Retrieved %d activity records for target %s.", len(activities), targetID))

	return map[string]any{
		"target_chembl_id": targetID,
		"activities":       activities,
		"logs":             logsValue(logs),
	}, nil
}

// numericField reads a measurement that ChEMBL encodes either as a JSON
// number or as a string ("19.0"). Anything else, including null, is absent.
func numericField(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
