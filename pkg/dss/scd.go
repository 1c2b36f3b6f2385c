package dss

import (
	"context"
	"fmt"
	"net/http"
)

// CreateOperationalIntentReference submits a new operational intent to the
// DSS. Key must carry the OVNs of every intent the extents overlap.
func (c *Client) CreateOperationalIntentReference(ctx context.Context, id string, params *PutOperationalIntentReferenceParameters) (*ChangeOperationalIntentReferenceResponse, error) {
	var response ChangeOperationalIntentReferenceResponse
	path := fmt.Sprintf("/dss/v1/operational_intent_references/%s", id)
	if err := c.do(ctx, http.MethodPut, path, params, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// UpdateOperationalIntentReference updates an existing intent. The current
// OVN proves we hold the latest version.
func (c *Client) UpdateOperationalIntentReference(ctx context.Context, id, ovn string, params *PutOperationalIntentReferenceParameters) (*ChangeOperationalIntentReferenceResponse, error) {
	var response ChangeOperationalIntentReferenceResponse
	path := fmt.Sprintf("/dss/v1/operational_intent_references/%s/%s", id, ovn)
	if err := c.do(ctx, http.MethodPut, path, params, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// DeleteOperationalIntentReference removes the intent from the DSS.
func (c *Client) DeleteOperationalIntentReference(ctx context.Context, id, ovn string) (*ChangeOperationalIntentReferenceResponse, error) {
	var response ChangeOperationalIntentReferenceResponse
	path := fmt.Sprintf("/dss/v1/operational_intent_references/%s/%s", id, ovn)
	if err := c.do(ctx, http.MethodDelete, path, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetOperationalIntentReference reads the current reference from the DSS.
func (c *Client) GetOperationalIntentReference(ctx context.Context, id string) (*OperationalIntentReference, error) {
	var response GetOperationalIntentReferenceResponse
	path := fmt.Sprintf("/dss/v1/operational_intent_references/%s", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}
	return &response.OperationalIntentReference, nil
}

// QueryOperationalIntentReferences returns all references intersecting the
// area of interest.
func (c *Client) QueryOperationalIntentReferences(ctx context.Context, params *QueryOperationalIntentReferenceParameters) ([]OperationalIntentReference, error) {
	var response QueryOperationalIntentReferenceResponse
	if err := c.do(ctx, http.MethodPost, "/dss/v1/operational_intent_references/query", params, &response); err != nil {
		return nil, err
	}
	return response.OperationalIntentReferences, nil
}
