package catalog

import "github.com/use-agent/pagescrape/models"

// Builtins returns the configs shipped with the service, keyed by name.
func Builtins() map[string]models.ScrapeConfig {
	return map[string]models.ScrapeConfig{
		"example-news":           exampleNews(),
		"wunderground-home":      wundergroundHome(),
		"alameda-jury-reporting": alamedaJuryReporting(),
	}
}

func exampleNews() models.ScrapeConfig {
	return models.ScrapeConfig{
		URL:             "https://example.com/news",
		WaitForSelector: ".article-list",
		Selectors: map[string]string{
			"headlines":    ".article-title",
			"descriptions": ".article-description",
			"authors":      ".article-author",
		},
	}
}

func wundergroundHome() models.ScrapeConfig {
	return models.ScrapeConfig{
		URL:               "https://www.wunderground.com/",
		WaitForSelector:   `[data-testid="CurrentConditions"]`,
		WaitForTimeout:    3000,
		NavigationTimeout: 60000,
		Selectors: map[string]string{
			"currentTemp":    `[data-testid="TemperatureValue"]`,
			"condition":      `[data-testid="wxPhrase"]`,
			"feelsLike":      `[data-testid="FeelsLikeSection"] [data-testid="TemperatureValue"]`,
			"windSpeed":      `[data-testid="Wind"] [data-testid="WindSpeed"]`,
			"windDirection":  `[data-testid="Wind"] [data-testid="WindDirection"]`,
			"humidity":       `[data-testid="PercentageValue"]`,
			"dewPoint":       `[data-testid="DewPoint"] [data-testid="TemperatureValue"]`,
			"pressure":       `[data-testid="PressureValue"]`,
			"visibility":     `[data-testid="VisibilitySection"] span`,
			"uvIndex":        `[data-testid="UVIndexValue"]`,
			"location":       `[data-testid="PresentationName"]`,
			"forecastDays":   `[data-testid="DailyForecast"] [data-testid="DaypartDetails"]`,
			"forecastTemps":  `[data-testid="DailyForecast"] [data-testid="TemperatureValue"]`,
			"hourlyForecast": `[data-testid="HourlyForecast"] [data-testid="HourlyForecastCard"]`,
			"airQuality":     `[data-testid="AirQualityModule"] [data-testid="AirQualityIndex"]`,
		},
		// Temperatures, wind and pressure carry their unit only as a CSS class.
		PostProcess: map[string]string{
			"currentTemp":   "unit-from-class",
			"feelsLike":     "unit-from-class",
			"dewPoint":      "unit-from-class",
			"forecastTemps": "unit-from-class",
			"windSpeed":     "unit-from-class",
			"pressure":      "unit-from-class",
			"humidity":      "unit-from-class",
			"condition":     "trim",
			"location":      "trim",
		},
		BlockResources: []string{"Image", "Media", "Font"},
		BlockAds:       true,
	}
}

func alamedaJuryReporting() models.ScrapeConfig {
	return models.ScrapeConfig{
		URL:               "https://www.alameda.courts.ca.gov/general-information/jury-service/jury-duty-reporting",
		WaitForSelector:   ".jcc-body__main-text",
		WaitForTimeout:    3000,
		NavigationTimeout: 60000,
		Selectors: map[string]string{
			"pageTitle":           "h1",
			"weekDates":           ".jcc-body__main-text > p:nth-of-type(1) strong",
			"groupNotices":        ".jcc-body__main-text .blockquote--box",
			"calledGroupsHeading": ".jcc-body__main-text h2",
			"instructions":        ".jcc-body__main-text > p",
			"courtLocations":      ".jcc-body__aside-text ul li a",
			"travelInfo":          ".jcc-body__aside-text p",
		},
		PostProcess: map[string]string{
			"groupNotices": "trim",
			"instructions": "trim",
			"travelInfo":   "trim",
		},
	}
}
