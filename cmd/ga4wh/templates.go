package main

const envTemplate = `# GA4 warehouse configuration
GA4_PROPERTY_ID=
GA4_CREDENTIALS_PATH=credentials.token
GA4_DB_PATH=ga4_data.db
GA4_EXPORT_DIR=.
# First run reaches back 30 days when unset (YYYY-MM-DD)
GA4_BACKFILL_START=
GA4_REPORTING_LAG_DAYS=1
GA4_MAX_RETRY_ATTEMPTS=3
GA4_BACKOFF_BASE=1s
# Leave empty to use the built-in datasets (users, content, site)
GA4_DATASETS_FILE=
GA4_LOG_FILE=ga4_warehouse.log
`

const datasetsTemplate = `# Dataset registry: each entry maps a logical dataset to a GA4 report
# (dimensions + metrics) and a warehouse fact table. The first dimension
# must be "date"; measures name the fact table columns in metric order.
datasets:
  - id: users
    table: user_metrics
    dimensions: [date]
    metrics: [activeUsers, sessions, engagementRate, conversions, averageSessionDuration]
    measures: [users, sessions, engagement_rate, conversions, average_session_duration]

  - id: content
    table: content_metrics
    dimensions: [date, pageTitle]
    metrics: [screenPageViews, sessions, engagementRate, userEngagementDuration]
    measures: [page_views, sessions, engagement_rate, session_duration]

  - id: site
    table: site_metrics
    dimensions: [date, searchTerm]
    metrics: [eventCount, screenPageViews]
    measures: [clicks, impressions]
`
