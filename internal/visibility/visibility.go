// Package visibility は閲覧者ごとの連絡先開示を判定し、公開用のビューへ射影する。
//
// 内部レコードから連絡先を削除するのではなく、判定結果に応じて
// PublicRequesterView または FullRequesterView のどちらかを新しく組み立てる。
package visibility

import "github.com/hitoshi/donormatch/internal/model"

// RequesterView は閲覧者に返す依頼者情報。
// PublicRequesterView と FullRequesterView のみが実装する。
type RequesterView interface {
	Identity() PublicRequesterView
	requesterView()
}

// PublicRequesterView は連絡先を含まない依頼者情報。
type PublicRequesterView struct {
	UserID      string
	Name        string
	Category    model.RequesterCategory
	City        string
	Country     string
	AddressLine string
}

// Identity は識別情報を返す。
func (v PublicRequesterView) Identity() PublicRequesterView { return v }

func (PublicRequesterView) requesterView() {}

// FullRequesterView は電話番号とメールアドレスを含む依頼者情報。
type FullRequesterView struct {
	PublicRequesterView
	Phone string
	Email string
}

// Identity は識別情報を返す。
func (v FullRequesterView) Identity() PublicRequesterView { return v.PublicRequesterView }

func (FullRequesterView) requesterView() {}

// CanSeeRequesterContact は閲覧者が依頼者の連絡先を見られるかを返す。
// 所有者、またはApplied状態の応募を持つ閲覧者のみtrue。
// latestは閲覧者のこの依頼への最新の応募（無ければnil）。
func CanSeeRequesterContact(viewerID, ownerID string, latest *model.Application) bool {
	if viewerID != "" && viewerID == ownerID {
		return true
	}
	return latest.Active()
}

// ProjectRequester は内部レコードを開示可否に応じたビューへ射影する。
func ProjectRequester(rec model.RequesterContact, full bool) RequesterView {
	pub := PublicRequesterView{
		UserID:      rec.UserID,
		Name:        rec.Name,
		Category:    rec.Category,
		City:        rec.City,
		Country:     rec.Country,
		AddressLine: rec.AddressLine,
	}
	if !full {
		return pub
	}
	return FullRequesterView{PublicRequesterView: pub, Phone: rec.Phone, Email: rec.Email}
}

// RequestView は閲覧者ごとに組み立てた依頼の詳細。
type RequestView struct {
	Request   model.Request
	Requester RequesterView
	IsOwner   bool
	// ApplicantCount は所有者にのみ設定される。
	ApplicantCount *int
	// MyApplication は閲覧者の最新の応募。所有者やその他の閲覧者ではnil。
	MyApplication        *model.Application
	HasActiveApplication bool
}

// ForViewer は閲覧者に応じた依頼ビューを生成する。
// applicantCountは閲覧者が所有者の場合のみ使用される。
func ForViewer(viewer model.Principal, req *model.Request, requester model.RequesterContact, latest *model.Application, applicantCount int) RequestView {
	isOwner := viewer.UserID == req.RequesterID
	view := RequestView{
		Request:   *req,
		Requester: ProjectRequester(requester, CanSeeRequesterContact(viewer.UserID, req.RequesterID, latest)),
		IsOwner:   isOwner,
	}
	if isOwner {
		n := applicantCount
		view.ApplicantCount = &n
		return view
	}
	if latest != nil {
		app := *latest
		view.MyApplication = &app
		view.HasActiveApplication = app.Active()
	}
	return view
}

// ApplicantView は依頼の所有者に返す応募者情報。
// 応募は献血者による開示の同意とみなし、連絡先を常に含む。
type ApplicantView struct {
	Application model.Application
	Donor       model.DonorContact
}

// ProjectApplicant は所有者向けに応募者を射影する。
// 呼び出し側で所有者であることを確認済みであること。
func ProjectApplicant(app model.Application, donor model.DonorContact) ApplicantView {
	return ApplicantView{Application: app, Donor: donor}
}
