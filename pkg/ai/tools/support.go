package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/samber/lo"
)

const (
	TRACK_ORDER        = "track_order"
	CHECK_INVENTORY    = "check_inventory"
	CALCULATE_SHIPPING = "calculate_shipping"
)

// placeholderTool validates its arguments and answers with a fixed notice
// until a real backend integration is wired in. echo lists the argument keys
// copied into the result.
type placeholderTool struct {
	name    string
	desc    string
	params  map[string]*schema.ParameterInfo
	echo    []string
	message string
}

func (t *placeholderTool) Name() string {
	return t.name
}

func (t *placeholderTool) Parameters() map[string]*schema.ParameterInfo {
	return t.params
}

func (t *placeholderTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name:        t.name,
		Desc:        t.desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(t.params),
	}, nil
}

func (t *placeholderTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	args := map[string]any{}
	if strings.TrimSpace(argumentsInJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return "", fmt.Errorf("failed to unmarshal arguments: %w", err)
		}
	}

	var missing []string
	for name, p := range t.params {
		if !p.Required {
			continue
		}
		if v, ok := args[name]; !ok || v == nil || v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("Missing required parameters: %s", strings.Join(missing, ", "))
	}

	slog.Info("tool called (placeholder)", slog.String("tool", t.name), slog.Any("arguments", lo.PickByKeys(args, t.echo)), slog.String("component", "tools"))

	result := lo.PickByKeys(args, t.echo)
	result["message"] = t.message
	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return string(raw), nil
}

func NewTrackOrderTool() Tool {
	return &placeholderTool{
		name: TRACK_ORDER,
		desc: "Track the status and shipping information for a customer order",
		params: map[string]*schema.ParameterInfo{
			"orderId": {Type: schema.String, Desc: "The order number or ID to track", Required: true},
			"email":   {Type: schema.String, Desc: "Customer email for verification (optional)"},
		},
		echo:    []string{"orderId"},
		message: "Tool architecture in place. Add order tracking API integration to enable.",
	}
}

func NewCheckInventoryTool() Tool {
	return &placeholderTool{
		name: CHECK_INVENTORY,
		desc: "Check the current inventory/stock level for a product in our store",
		params: map[string]*schema.ParameterInfo{
			"productId":   {Type: schema.String, Desc: "The product ID or SKU to check inventory for", Required: true},
			"productName": {Type: schema.String, Desc: "The product name (optional, used for better results)"},
		},
		echo:    []string{"productId"},
		message: "Tool architecture in place. Add Shopify API integration to enable.",
	}
}

func NewCalculateShippingTool() Tool {
	return &placeholderTool{
		name: CALCULATE_SHIPPING,
		desc: "Calculate shipping cost for a delivery address and cart",
		params: map[string]*schema.ParameterInfo{
			"country":   {Type: schema.String, Desc: "Destination country code (e.g., US, CA, UK)", Required: true},
			"state":     {Type: schema.String, Desc: "State or province (optional)"},
			"zipCode":   {Type: schema.String, Desc: "ZIP or postal code", Required: true},
			"cartTotal": {Type: schema.Number, Desc: "Total cart value in USD", Required: true},
		},
		echo:    []string{"country", "zipCode"},
		message: "Tool architecture in place. Add shipping API integration to enable.",
	}
}

// SupportTools returns the built in customer support tools.
func SupportTools() []Tool {
	return []Tool{NewTrackOrderTool(), NewCheckInventoryTool(), NewCalculateShippingTool()}
}
