package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/harun/toolgate/pkg/capability"
	"github.com/tidwall/gjson"
)

// DefaultWeatherURL is the OpenWeatherMap current weather endpoint
const DefaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

type weatherArgs struct {
	City  string `json:"city" jsonschema:"description=The city name to get weather for"`
	Units string `json:"units,omitempty" jsonschema:"description=Temperature units,enum=metric,enum=imperial,enum=kelvin,default=metric"`
}

var weatherSchema = capability.ReflectSchema(&weatherArgs{})

type weatherCapability struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

func newWeather(unit capability.Unit, cfg WeatherConfig, client *http.Client) *weatherCapability {
	baseURL := unitString(unit, "base_url", cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultWeatherURL
	}
	return &weatherCapability{
		name:    unit.Name,
		apiKey:  unitString(unit, "api_key", cfg.APIKey),
		baseURL: baseURL,
		client:  client,
	}
}

func (c *weatherCapability) Description() string {
	return "Get current weather information for a location"
}

func (c *weatherCapability) InputSchema() map[string]interface{} {
	return weatherSchema
}

func (c *weatherCapability) Run(ctx context.Context, args capability.Args) (capability.Result, error) {
	city := stringArg(args, "city")
	if city == "" {
		return capability.Result{"tool": c.name, "error": "Missing 'city' parameter"}, nil
	}

	if c.apiKey == "" {
		return capability.Result{
			"tool":   c.name,
			"city":   city,
			"result": fmt.Sprintf("Mock weather data: The weather in %s is sunny with 25°C (no API key configured)", city),
		}, nil
	}

	units := stringArg(args, "units")
	if units == "" {
		units = "metric"
	}

	body, status, err := c.fetch(ctx, city, units)
	if err != nil {
		return capability.Result{"tool": c.name, "error": fmt.Sprintf("Weather service error: %v", err)}, nil
	}
	if status != http.StatusOK {
		return capability.Result{"tool": c.name, "error": fmt.Sprintf("Weather API error: %d - %s", status, body)}, nil
	}

	data := gjson.ParseBytes(body)
	temp := data.Get("main.temp")
	description := data.Get("weather.0.description").String()

	return capability.Result{
		"tool":        c.name,
		"city":        city,
		"temperature": temp.Value(),
		"description": description,
		"humidity":    data.Get("main.humidity").Value(),
		"pressure":    data.Get("main.pressure").Value(),
		"units":       units,
		"result":      fmt.Sprintf("Weather in %s: %s, %s°%s", city, description, temp.Raw, unitLetter(units)),
	}, nil
}

func (c *weatherCapability) fetch(ctx context.Context, city, units string) ([]byte, int, error) {
	query := url.Values{}
	query.Set("q", city)
	query.Set("appid", c.apiKey)
	query.Set("units", units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func unitLetter(units string) string {
	switch units {
	case "metric":
		return "C"
	case "imperial":
		return "F"
	}
	return "K"
}
