package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"

	"github.com/Lllllllleong/solarleadcapture/internal/attribution"
	"github.com/Lllllllleong/solarleadcapture/internal/capture"
	"github.com/Lllllllleong/solarleadcapture/internal/config"
	"github.com/Lllllllleong/solarleadcapture/internal/documents"
	"github.com/Lllllllleong/solarleadcapture/internal/gcp"
	"github.com/Lllllllleong/solarleadcapture/internal/identity"
	"github.com/Lllllllleong/solarleadcapture/internal/leads"
	"github.com/Lllllllleong/solarleadcapture/internal/webhook"
	"github.com/Lllllllleong/solarleadcapture/internal/wizard"
)

// LeadCapture is the fully wired service behind the HTTP API.
type LeadCapture struct {
	Config     *config.Config
	Tracker    *attribution.Tracker
	Identities identity.Resolver
	Sessions   *wizard.Store
	Onboarding *Onboarding
	Dashboard  *Dashboard
	Contact    *Contact
	Review     *Review

	beacon           *capture.BeaconStrategy
	firestoreClient  *firestore.Client
	storageClient    *storage.Client
	executionsClient *executions.Client
}

// NewLeadCapture creates the GCP clients and every component from cfg.
func NewLeadCapture(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*LeadCapture, error) {
	if logger == nil {
		logger = slog.Default()
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		firestoreClient.Close()
		return nil, err
	}

	var executionsClient *executions.Client
	if cfg.WorkflowID != "" {
		executionsClient, err = gcp.NewExecutionsClient(ctx)
		if err != nil {
			firestoreClient.Close()
			storageClient.Close()
			return nil, err
		}
	}

	router, err := newRouter(cfg, logger)
	if err != nil {
		firestoreClient.Close()
		storageClient.Close()
		if executionsClient != nil {
			executionsClient.Close()
		}
		return nil, err
	}

	l := &LeadCapture{
		firestoreClient:  firestoreClient,
		storageClient:    storageClient,
		executionsClient: executionsClient,
	}
	l.wire(cfg, logger, router,
		leads.NewFirestoreRepository(firestoreClient, cfg.LeadsCollection),
		documents.NewGCSStore(storageClient, cfg.BillsBucket, cfg.PublicBaseURL),
		identity.NewFirestoreSessions(firestoreClient, cfg.SessionsCollection),
	)
	if executionsClient != nil {
		parent := gcp.WorkflowParent(cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID)
		l.Onboarding.trigger = NewWorkflowReviewTrigger(executionsClient, parent, logger)
	}

	logger.Info("Lead capture initialised.",
		"leadsCollection", cfg.LeadsCollection,
		"billsBucket", cfg.BillsBucket,
		"webhookSinks", len(cfg.WebhookURLs()),
		"reviewWorkflow", cfg.WorkflowID != "")
	return l, nil
}

// wire builds the components on top of the given backends.
func (l *LeadCapture) wire(cfg *config.Config, logger *slog.Logger, publisher *webhook.Router, repo leads.Repository, blobs documents.BlobStore, resolver identity.Resolver) {
	uploader := documents.NewUploader(blobs, documents.PDFPageCounter{}, cfg.UploadConcurrency, logger)
	l.beacon = capture.NewBeaconStrategy(publisher, cfg.WebhookTimeout)
	scheduler := capture.NewScheduler(l.beacon, capture.NewAwaitedStrategy(publisher), logger)

	l.Config = cfg
	l.Tracker = attribution.NewTracker(logger)
	l.Identities = resolver
	l.Sessions = wizard.NewStore(wizard.DefaultSteps(), cfg.SessionMaxAge)
	l.Onboarding = NewOnboarding(OnboardingDeps{
		Store:     l.Sessions,
		Leads:     repo,
		Uploader:  uploader,
		Publisher: publisher,
		Scheduler: scheduler,
		Logger:    logger,
	})
	l.Dashboard = NewDashboard(repo, uploader, publisher, logger)
	l.Contact = NewContact(publisher, logger)
	l.Review = NewReview(repo, logger)
}

func newRouter(cfg *config.Config, logger *slog.Logger) (*webhook.Router, error) {
	var sinks []webhook.Sink
	names := []string{"zapier", "make"}
	for i, u := range []string{cfg.ZapierWebhookURL, cfg.MakeWebhookURL} {
		if u == "" {
			continue
		}
		sinks = append(sinks, webhook.NewHTTPSink(names[i], u, cfg.WebhookTimeout))
	}
	if cfg.CloudEventsSinkURL != "" {
		ce, err := webhook.NewCloudEventSink(cfg.CloudEventsSinkURL, cfg.WebhookTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloudevents sink: %w", err)
		}
		sinks = append(sinks, ce)
	}
	if len(sinks) == 0 {
		logger.Warn("No webhook sinks configured, lead events will be dropped.")
	}
	return webhook.NewRouter(logger, sinks...), nil
}

// Close waits for in-flight beacon deliveries and closes the GCP clients.
func (l *LeadCapture) Close() error {
	if l.beacon != nil {
		l.beacon.Wait()
	}
	var errList []error
	if l.executionsClient != nil {
		errList = append(errList, l.executionsClient.Close())
	}
	if l.storageClient != nil {
		errList = append(errList, l.storageClient.Close())
	}
	if l.firestoreClient != nil {
		errList = append(errList, l.firestoreClient.Close())
	}
	return errors.Join(errList...)
}
