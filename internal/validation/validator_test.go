// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package validation

import (
	"math"
	"strings"
	"testing"
)

type trainRequest struct {
	ModelName string      `json:"model_name" validate:"omitempty,modelname"`
	Features  [][]float64 `json:"features" validate:"required,min=1,dive,min=1,dive,finite"`
	Labels    []int       `json:"labels" validate:"required"`
	Limit     int         `json:"limit" validate:"omitempty,min=1,max=500"`
	Backend   string      `json:"backend" validate:"omitempty,oneof=gochannel nats"`
}

func validTrainRequest() trainRequest {
	return trainRequest{
		ModelName: "default",
		Features:  [][]float64{{1, 2}, {3, 4}},
		Labels:    []int{0, 1},
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() returned different instances")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*trainRequest)
		wantField string
		wantTag   string
	}{
		{"valid", func(*trainRequest) {}, "", ""},
		{"empty model name allowed", func(r *trainRequest) { r.ModelName = "" }, "", ""},
		{"dotted model name", func(r *trainRequest) { r.ModelName = "fraud.v2-beta_1" }, "", ""},
		{"bad model name", func(r *trainRequest) { r.ModelName = "../etc" }, "model_name", "modelname"},
		{"long model name", func(r *trainRequest) { r.ModelName = strings.Repeat("a", 65) }, "model_name", "modelname"},
		{"missing features", func(r *trainRequest) { r.Features = nil }, "features", "required"},
		{"empty row", func(r *trainRequest) { r.Features[1] = []float64{} }, "features[1]", "min"},
		{"nan", func(r *trainRequest) { r.Features[0][1] = math.NaN() }, "features[0][1]", "finite"},
		{"inf", func(r *trainRequest) { r.Features[1][0] = math.Inf(-1) }, "features[1][0]", "finite"},
		{"missing labels", func(r *trainRequest) { r.Labels = nil }, "labels", "required"},
		{"limit too big", func(r *trainRequest) { r.Limit = 501 }, "limit", "max"},
		{"unknown backend", func(r *trainRequest) { r.Backend = "kafka" }, "backend", "oneof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validTrainRequest()
			tt.mutate(&req)
			err := ValidateStruct(&req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("error = %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	tests := []struct {
		mutate func(*trainRequest)
		want   string
	}{
		{func(r *trainRequest) { r.Labels = nil }, "labels is required"},
		{func(r *trainRequest) { r.Features[0][0] = math.NaN() }, "features[0][0] must be a finite number"},
		{func(r *trainRequest) { r.Limit = 900 }, "limit must be at most 500"},
		{func(r *trainRequest) { r.Features[0] = []float64{} }, "features[0] must be at least 1 items"},
		{func(r *trainRequest) { r.Backend = "x" }, "backend must be one of: gochannel nats"},
	}
	for _, tt := range tests {
		req := validTrainRequest()
		tt.mutate(&req)
		err := ValidateStruct(&req)
		if err == nil || err.Error() != tt.want {
			t.Errorf("ValidateStruct() = %v, want %q", err, tt.want)
		}
	}
}

func TestToAPIError(t *testing.T) {
	req := validTrainRequest()
	req.ModelName = "no spaces"
	single := ValidateStruct(&req).ToAPIError()
	if single.Code != "VALIDATION_ERROR" || single.Details["field"] != "model_name" {
		t.Errorf("single ToAPIError() = %+v", single)
	}

	req.Labels = nil
	multi := ValidateStruct(&req).ToAPIError()
	fields, ok := multi.Details["fields"].([]map[string]any)
	if !ok || len(fields) != 2 {
		t.Fatalf("multi Details = %+v", multi.Details)
	}
	if !strings.Contains(multi.Message, "; ") {
		t.Errorf("multi Message = %q, want joined messages", multi.Message)
	}

	empty := (&RequestValidationError{}).ToAPIError()
	if empty.Message != "Validation failed" {
		t.Errorf("empty ToAPIError() = %+v", empty)
	}
}

func TestValidModelName(t *testing.T) {
	for name, want := range map[string]bool{
		"default":   true,
		"a":         true,
		"A-b_c.1":   true,
		"":          false,
		"has space": false,
		"slash/es":  false,
	} {
		if got := ValidModelName(name); got != want {
			t.Errorf("ValidModelName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFiniteRejectsNonFloat(t *testing.T) {
	type bad struct {
		N int `json:"n" validate:"finite"`
	}
	if err := ValidateStruct(&bad{N: 1}); err == nil {
		t.Error("finite on an int should fail")
	}
}
