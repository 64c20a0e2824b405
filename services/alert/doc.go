/*
Alert provides the configuration service for alerts and their triggers.

Responsibilities of this package include:

  - Deciding which view of an alert a caller is entitled to
  - Reconciling submitted edits against the stored alert, its owners,
    subscribers and triggers, as one transaction
  - Storing alert and trigger definitions
  - Providing an HTTP API for the above

Triggers are reconciled positionally: the i-th submitted row edits the
i-th stored trigger. DiffTriggers isolates that policy.
*/
package alert
