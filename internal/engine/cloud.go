// Cloud engine flow (§4.K, §9 tagged-variant design): runCloud drives the
// debrid submit -> progress-poll -> links -> streamed-download pipeline in
// a background goroutine, reporting back through cloudProgressC/cloudDoneC
// so the run loop itself never blocks on an HTTP call.
package engine

import (
	"time"

	"github.com/vinayydv3695/SeedCore/internal/cloudtransfer"
	"github.com/vinayydv3695/SeedCore/internal/debrid"
	"github.com/vinayydv3695/SeedCore/internal/errkind"
)

// SetCloudFileIndices restricts which files are fetched once the provider
// requires explicit selection (§4.J select_files). Must be called before
// Launch().
func (e *Engine) SetCloudFileIndices(indices []int) {
	e.fileIndices = indices
}

func (e *Engine) runCloud() {
	defer close(e.done)
	for {
		select {
		case req := <-e.startC:
			req.respC <- e.handleCloudStart()
		case req := <-e.pauseC:
			req.respC <- e.handleCloudPause()
		case req := <-e.removeC:
			req.respC <- e.handleCloudRemove(req.deleteFiles)
			return
		case req := <-e.snapshotC:
			req.respC <- e.buildSnapshot()
		case req := <-e.priorityC:
			req.respC <- errkind.New(errkind.InvalidInput, "file priority is not applicable to a cloud transfer")

		case p := <-e.cloudProgressC:
			e.applyCloudProgress(p)
		case err := <-e.cloudDoneC:
			e.finishCloud(err)

		case <-e.stopC:
			return
		}
	}
}

func (e *Engine) handleCloudStart() error {
	switch e.state {
	case Downloading, Seeding, Complete:
		return nil
	}
	client, ok := e.deps.Debrid.Get(e.provider)
	if !ok {
		e.lastErr = "debrid provider not configured: " + e.provider
		e.state = Errored
		return errkind.New(errkind.InvalidInput, e.lastErr)
	}
	e.activityCtx, e.activityCancel = contextBackground()
	e.state = Downloading
	go e.runCloudPipeline(client)
	return nil
}

// runCloudPipeline is the actual network-bound sequence, entirely off the
// run goroutine: submit, poll until materialized, fetch links, stream.
func (e *Engine) runCloudPipeline(client debrid.Client) {
	ctx := e.activityCtx

	remoteID := e.remoteID
	if remoteID == "" {
		id, err := client.Submit(ctx, e.magnetOrHash)
		if err != nil {
			e.cloudDoneC <- err
			return
		}
		remoteID = id
		e.remoteID = id
	}

	if len(e.fileIndices) > 0 {
		if err := client.SelectFiles(ctx, remoteID, e.fileIndices); err != nil {
			e.cloudDoneC <- err
			return
		}
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		prog, err := client.Progress(ctx, remoteID)
		if err != nil {
			e.cloudDoneC <- err
			return
		}
		switch prog.Status {
		case debrid.Downloaded:
			goto materialized
		case debrid.Error, debrid.Dead:
			e.cloudDoneC <- errkind.New(errkind.FatalProvider, "remote transfer failed: "+string(prog.Status))
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			e.cloudDoneC <- errkind.New(errkind.Cancelled, "cloud transfer cancelled")
			return
		}
	}

materialized:
	links, err := client.Links(ctx, remoteID)
	if err != nil {
		e.cloudDoneC <- err
		return
	}

	files := make([]cloudtransfer.File, len(links))
	var total int64
	for i, l := range links {
		files[i] = cloudtransfer.File{URL: l.URL, RelPath: l.Path, Size: l.Size}
		total += l.Size
	}
	e.cloudTotal = total

	concurrency := e.deps.Config.CloudConcurrency
	if concurrency <= 0 {
		concurrency = minInt(e.deps.Config.MaxActiveDownloads, 4)
	}
	e.transfer = cloudtransfer.New(e.savePath, concurrency, e.deps.Buckets.Download, e.log)

	go func() {
		for p := range e.transfer.Progress() {
			select {
			case e.cloudProgressC <- p:
			case <-e.stopC:
				return
			}
		}
	}()

	err = e.transfer.Run(ctx, files)
	e.cloudDoneC <- err
}

func (e *Engine) applyCloudProgress(p cloudtransfer.Progress) {
	found := false
	for i := range e.cloudFiles {
		if e.cloudFiles[i].RelPath == p.RelPath {
			e.cloudFiles[i].BytesComplete = p.Bytes
			e.cloudFiles[i].Size = p.Total
			found = true
			break
		}
	}
	if !found {
		e.cloudFiles = append(e.cloudFiles, FileStatus{RelPath: p.RelPath, Size: p.Total, BytesComplete: p.Bytes})
	}

	var sum int64
	for _, f := range e.cloudFiles {
		sum += f.BytesComplete
	}
	e.bytesDown = sum
	e.cloudBytes = sum
}

func (e *Engine) finishCloud(err error) {
	if err != nil {
		if errkind.Is(err, errkind.Cancelled) || e.state == Paused {
			return
		}
		e.lastErr = err.Error()
		e.state = Errored
		e.persistCloud()
		return
	}
	e.completed = true
	e.state = Seeding
	e.persistCloud()
}

func (e *Engine) handleCloudPause() error {
	switch e.state {
	case Queued, Paused:
		return nil
	}
	if e.activityCancel != nil {
		e.activityCancel()
	}
	e.persistCloud()
	e.state = Paused
	return nil
}

func (e *Engine) handleCloudRemove(deleteFiles bool) error {
	if e.activityCancel != nil {
		e.activityCancel()
	}
	e.closeStop()
	if e.deps.Store != nil {
		_ = e.deps.Store.DeleteTorrent(e.id)
	}
	if deleteFiles {
		_ = removeAll(e.savePath)
	}
	return nil
}

func (e *Engine) persistCloud() {
	if e.deps.Store == nil {
		return
	}
	rec := e.baseRecord()
	rec.BytesDownloaded = e.bytesDown
	rec.Started = e.state == Downloading || e.state == Seeding
	_ = e.deps.Store.SaveTorrent(rec)
}
