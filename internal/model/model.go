package model

// --- Twitter v2 create tweet ---

type TweetReq struct {
	Text  string      `json:"text"`
	Media *TweetMedia `json:"media,omitempty"`
}
type TweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}
type TweetResp struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// --- Twitter v1.1 media/upload (simple and chunked) ---

type MediaUploadResp struct {
	MediaID        int64           `json:"media_id"`
	MediaIDString  string          `json:"media_id_string"`
	ProcessingInfo *ProcessingInfo `json:"processing_info,omitempty"`
}

// ProcessingInfo is returned by FINALIZE and STATUS for async video uploads.
type ProcessingInfo struct {
	State          string `json:"state"` // pending | in_progress | succeeded | failed
	CheckAfterSecs int    `json:"check_after_secs"`
	ProgressPct    int    `json:"progress_percent"`
	Error          *struct {
		Code    int    `json:"code"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// --- Facebook Graph feed ---

// AttachedMedia links a staged unpublished photo into a feed post.
type AttachedMedia struct {
	MediaFBID string `json:"media_fbid"`
}

// --- LinkedIn ugcPosts ---

type UGCPost struct {
	Author          string            `json:"author"`
	LifecycleState  string            `json:"lifecycleState"`
	SpecificContent UGCSpecific       `json:"specificContent"`
	Visibility      map[string]string `json:"visibility"`
}
type UGCSpecific struct {
	ShareContent UGCShareContent `json:"com.linkedin.ugc.ShareContent"`
}
type UGCShareContent struct {
	ShareCommentary    UGCText    `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"` // NONE | ARTICLE
	Media              []UGCMedia `json:"media,omitempty"`
}
type UGCText struct {
	Text string `json:"text"`
}
type UGCMedia struct {
	Status      string `json:"status"`
	OriginalURL string `json:"originalUrl"`
}
