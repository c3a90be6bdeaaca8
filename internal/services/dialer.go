package services

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alakhotia160011/voxbharat-sub000/internal/call"
	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
	"github.com/alakhotia160011/voxbharat-sub000/internal/providers/convo"
	"github.com/alakhotia160011/voxbharat-sub000/internal/providers/telephony"
	"github.com/alakhotia160011/voxbharat-sub000/internal/utils"
)

// Dialer turns a campaign number into a live, registered call session
// and asks the telephony provider to dial it. The scheduler uses
// Initiate as its dispatch function.
type Dialer struct {
	telephony *telephony.Client
	registry  *call.Registry

	// base holds the collaborators shared by every session; Convo and
	// Fallback are filled per call.
	base call.Deps

	newConvo func(systemPrompt, extractPrompt string) convo.Provider

	publicBaseURL   string
	defaultLanguage string
	log             *logrus.Logger
}

func NewDialer(
	tel *telephony.Client,
	registry *call.Registry,
	base call.Deps,
	newConvo func(systemPrompt, extractPrompt string) convo.Provider,
	publicBaseURL, defaultLanguage string,
	log *logrus.Logger,
) *Dialer {
	base.Registry = registry
	return &Dialer{
		telephony:       tel,
		registry:        registry,
		base:            base,
		newConvo:        newConvo,
		publicBaseURL:   publicBaseURL,
		defaultLanguage: defaultLanguage,
		log:             log,
	}
}

// Initiate registers a session for the number and places the call.
// The returned id is ours; the provider's sid is bound to the session
// for webhook correlation.
func (d *Dialer) Initiate(ctx context.Context, c *models.Campaign, num models.CampaignNumber) (string, error) {
	const op = "Dialer.Initiate"

	callID := uuid.NewString()
	questions := c.Questions.Data()
	if len(questions) == 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "campaign has no questions", nil)
	}

	deps := d.base
	deps.Convo = d.newConvo(
		convo.SurveySystemPrompt(c.Name, c.Language, questions),
		convo.ExtractionPrompt(questions),
	)
	deps.Fallback = convo.ScriptFor(c.Name, c.Language, questions)

	sess := call.NewSession(call.Config{
		CallID:          callID,
		CampaignID:      c.ID,
		Phone:           num.Phone,
		Language:        c.Language,
		DefaultLanguage: d.defaultLanguage,
		DetectLanguage:  c.DetectLanguage,
		VoiceGender:     c.VoiceGender,
		Questions:       questions,
	}, deps)

	if err := d.registry.Add(sess); err != nil {
		return "", utils.E(utils.CodeConflict, op, "session registration failed", err)
	}

	sid, err := d.telephony.PlaceCall(ctx, num.Phone, d.webhookURL("voice", callID), d.webhookURL("status", callID))
	if err != nil {
		d.registry.Remove(callID)
		return "", utils.E(utils.CodeUnavailable, op, "call placement failed", err)
	}
	sess.SetTelephonyCallID(sid)

	d.log.WithFields(logrus.Fields{
		"call_id":     callID,
		"campaign_id": c.ID,
		"provider_id": sid,
	}).Info("outbound call placed")
	return callID, nil
}

// EndCall tears down the telephony leg of an in-progress call.
func (d *Dialer) EndCall(ctx context.Context, telephonyCallID string) error {
	return d.telephony.EndCall(ctx, telephonyCallID)
}

func (d *Dialer) webhookURL(kind, callID string) string {
	return fmt.Sprintf("%s/webhooks/telephony/%s?call_id=%s", d.publicBaseURL, kind, url.QueryEscape(callID))
}
