package sqlinline

const QEnsurePageViewsSchema = `--sql f8690012-28f0-43b3-944c-109187a984eb
create table if not exists page_views (
  id bigserial primary key,
  page text not null,
  bucket_date date not null,
  bucket_hour smallint not null check (bucket_hour between 0 and 23),
  view_count bigint not null default 0 check (view_count >= 0),
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now(),
  unique (page, bucket_date, bucket_hour)
);
`

const QUpsertPageView = `--sql cf700d25-fd2e-4cfd-8ac4-bad896fbedf4
insert into page_views (page, bucket_date, bucket_hour, view_count)
values ($1, $2, $3, $4)
on conflict (page, bucket_date, bucket_hour)
do update set view_count = page_views.view_count + excluded.view_count,
              updated_at = now()
returning view_count;
`

const QGetPageView = `--sql fbd86584-2c54-427a-b373-daec704e3c02
select view_count
from page_views
where page = $1 and bucket_date = $2 and bucket_hour = $3;
`

const QPing = `--sql 0b21210c-9c35-47d3-a5d9-5013a2560218
select 1;
`
