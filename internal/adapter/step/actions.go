package step

import (
	"context"
	"errors"

	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"
	"tracking-cog/internal/infrastructure/browser/rod"
)

type NavigateToPage struct {
	log output.LoggerPort
}

func NewNavigateToPage(d Deps) *NavigateToPage {
	return &NavigateToPage{log: d.Log}
}

func (s *NavigateToPage) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "NavigateToPage",
		Name:       "Navigate to a webpage",
		Expression: `navigate to (?<webPageUrl>.+)`,
		Type:       entity.StepTypeAction,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "webPageUrl", Type: entity.FieldTypeURL, Optionality: entity.Required, Description: "Page URL"},
		},
	}
}

func (s *NavigateToPage) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	url, err := stringField(data, "webPageUrl")
	if err != nil {
		return errored("%s", err.Error()), nil
	}

	if err := sess.Navigate(ctx, url); err != nil {
		if errors.Is(err, rod.ErrInvalidURL) {
			return errored("%s is not a valid URL: it must be absolute and use http or https", url), nil
		}
		return withRecords(errored("There was a problem navigating to %s: %s", url, err.Error()), errorRecord(err)), nil
	}

	s.log.Debug("navigated", "url", url, "requests", sess.RequestCount())
	return passed("Successfully navigated to %s", url), nil
}

type EnterValueIntoField struct{}

func NewEnterValueIntoField(Deps) *EnterValueIntoField {
	return &EnterValueIntoField{}
}

func (s *EnterValueIntoField) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "EnterValueIntoField",
		Name:       "Fill out a form field",
		Expression: `fill out (?<domQuerySelector>.+) with (?<value>.+)`,
		Type:       entity.StepTypeAction,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "domQuerySelector", Type: entity.FieldTypeString, Optionality: entity.Required, Description: "Field's DOM query selector"},
			{Key: "value", Type: entity.FieldTypeAnyScalar, Optionality: entity.Required, Description: "Field value"},
		},
	}
}

func (s *EnterValueIntoField) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	selector, err := stringField(data, "domQuerySelector")
	if err != nil {
		return errored("%s", err.Error()), nil
	}
	value, ok := optionalString(data, "value")
	if !ok {
		return errored("%s", errMissingField.Error()+": value"), nil
	}

	if err := sess.Fill(ctx, selector, value); err != nil {
		return withRecords(errored("There was a problem entering %s into field %s: %s", value, selector, err.Error()), errorRecord(err)), nil
	}
	return passed("Successfully filled out %s with %s", selector, value), nil
}

type ClickOnElement struct{}

func NewClickOnElement(Deps) *ClickOnElement {
	return &ClickOnElement{}
}

func (s *ClickOnElement) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "ClickOnElement",
		Name:       "Click an element on a page",
		Expression: `click the (?<domQuerySelector>.+) button`,
		Type:       entity.StepTypeAction,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "domQuerySelector", Type: entity.FieldTypeString, Optionality: entity.Required, Description: "Element's DOM query selector or XPath"},
		},
	}
}

func (s *ClickOnElement) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	selector, err := stringField(data, "domQuerySelector")
	if err != nil {
		return errored("%s", err.Error()), nil
	}

	if err := sess.Click(ctx, selector); err != nil {
		return withRecords(errored("There was a problem clicking element %s: %s", selector, err.Error()), errorRecord(err)), nil
	}
	return passed("Successfully clicked element: %s", selector), nil
}

type ScrollTo struct{}

func NewScrollTo(Deps) *ScrollTo {
	return &ScrollTo{}
}

func (s *ScrollTo) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "ScrollTo",
		Name:       "Scroll to a percentage depth of a web page",
		Expression: `scroll to (?<depth>\d+)(?<units>px|%) of the page`,
		Type:       entity.StepTypeAction,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "depth", Type: entity.FieldTypeNumeric, Optionality: entity.Required, Description: "Depth to scroll to"},
			{Key: "units", Type: entity.FieldTypeString, Optionality: entity.Optional, Description: "px or % (default %)"},
		},
	}
}

func (s *ScrollTo) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	depth, err := intField(data, "depth")
	if err != nil {
		return errored("%s", err.Error()), nil
	}
	units, ok := optionalString(data, "units")
	if !ok || units == "" {
		units = "%"
	}

	if err := sess.ScrollTo(ctx, depth, units); err != nil {
		return withRecords(errored("There was a problem scrolling to %d%s of the page: %s", depth, units, err.Error()), errorRecord(err)), nil
	}
	return passed("Successfully scrolled to %d%s of the page", depth, units), nil
}

type FocusOnFrame struct{}

func NewFocusOnFrame(Deps) *FocusOnFrame {
	return &FocusOnFrame{}
}

func (s *FocusOnFrame) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "FocusOnFrame",
		Name:       "Focus on frame",
		Expression: `focus on the (?<domQuerySelector>.+) frame`,
		Type:       entity.StepTypeAction,
		ExpectedFields: []entity.FieldDefinition{
			{Key: "domQuerySelector", Type: entity.FieldTypeString, Optionality: entity.Required, Description: "The iframe's DOM query selector, or \"main\" for the main document"},
		},
	}
}

func (s *FocusOnFrame) Execute(ctx context.Context, sess output.Session, data map[string]any) (*entity.StepResponse, error) {
	selector, err := stringField(data, "domQuerySelector")
	if err != nil {
		return errored("%s", err.Error()), nil
	}

	if err := sess.FocusFrame(ctx, selector); err != nil {
		return withRecords(errored("Frame %s does not exist: %s", selector, err.Error()), errorRecord(err)), nil
	}
	if sess.CurrentFrame() == "" {
		return passed("Focused on the main document"), nil
	}
	return passed("Focused on frame %s", selector), nil
}

type TakeScreenshot struct{}

func NewTakeScreenshot(Deps) *TakeScreenshot {
	return &TakeScreenshot{}
}

func (s *TakeScreenshot) Definition() entity.StepDefinition {
	return entity.StepDefinition{
		StepID:     "TakeScreenshot",
		Name:       "Take a screenshot",
		Expression: `take a screenshot`,
		Type:       entity.StepTypeAction,
	}
}

func (s *TakeScreenshot) Execute(ctx context.Context, sess output.Session, _ map[string]any) (*entity.StepResponse, error) {
	shot, err := sess.Screenshot(ctx)
	if err != nil {
		return withRecords(errored("There was a problem taking a screenshot: %s", err.Error()), errorRecord(err)), nil
	}
	return withRecords(
		passed("Successfully took a screenshot of %s", sess.CurrentURL()),
		binaryRecord("screenshot", "Screenshot", "image/"+shot.Format, shot.Data),
	), nil
}
